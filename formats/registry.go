// Package formats is the static table of supported media formats and the
// allow-list of conversions between them.
package formats

import (
	"sort"

	"mediaconv/failures"
	"mediaconv/models"
)

var descriptors = map[models.MediaFormat]models.FormatDescriptor{
	models.FormatMP4: {
		Format: models.FormatMP4, MimeType: "video/mp4", Extension: ".mp4", Kind: models.KindVideo,
		VideoCodec: "libx264", AudioCodec: "aac",
		ExtraFlags: []string{"-movflags", "+faststart"},
	},
	models.FormatWebM: {
		Format: models.FormatWebM, MimeType: "video/webm", Extension: ".webm", Kind: models.KindVideo,
		VideoCodec: "libvpx-vp9", AudioCodec: "libopus",
	},
	models.FormatMOV: {
		Format: models.FormatMOV, MimeType: "video/quicktime", Extension: ".mov", Kind: models.KindVideo,
		VideoCodec: "libx264", AudioCodec: "aac",
		ExtraFlags: []string{"-movflags", "+faststart", "-pix_fmt", "yuv420p"},
	},
	models.FormatAVI: {
		Format: models.FormatAVI, MimeType: "video/x-msvideo", Extension: ".avi", Kind: models.KindVideo,
		VideoCodec: "libx264", AudioCodec: "aac",
		ExtraFlags: []string{"-pix_fmt", "yuv420p", "-vtag", "XVID"},
	},
	models.FormatFLV: {
		Format: models.FormatFLV, MimeType: "video/x-flv", Extension: ".flv", Kind: models.KindVideo,
		VideoCodec: "libx264", AudioCodec: "aac",
		ExtraFlags: []string{"-pix_fmt", "yuv420p", "-f", "flv", "-flvflags", "aac_seq_header_detect"},
	},
	models.FormatMKV: {
		Format: models.FormatMKV, MimeType: "video/x-matroska", Extension: ".mkv", Kind: models.KindVideo,
		VideoCodec: "libx264", AudioCodec: "aac",
		ExtraFlags: []string{"-pix_fmt", "yuv420p", "-map", "0", "-c:s", "copy"},
	},
	models.FormatPNG: {
		Format: models.FormatPNG, MimeType: "image/png", Extension: ".png", Kind: models.KindImage,
		ExtraFlags: []string{"-compression_level", "9"},
	},
	models.FormatJPG: {
		Format: models.FormatJPG, MimeType: "image/jpeg", Extension: ".jpg", Kind: models.KindImage,
		ExtraFlags: []string{"-qmin", "1", "-qmax", "100"},
	},
	models.FormatJPEG: {
		Format: models.FormatJPEG, MimeType: "image/jpeg", Extension: ".jpeg", Kind: models.KindImage,
		ExtraFlags: []string{"-qmin", "1", "-qmax", "100"},
	},
	models.FormatWebP: {
		Format: models.FormatWebP, MimeType: "image/webp", Extension: ".webp", Kind: models.KindImage,
		ExtraFlags: []string{"-lossless", "0", "-quality", "90", "-compression_level", "6"},
	},
	models.FormatSVG: {
		Format: models.FormatSVG, MimeType: "image/svg+xml", Extension: ".svg", Kind: models.KindImage,
	},
}

var imageTargets = map[models.MediaFormat][]models.MediaFormat{
	models.FormatPNG:  {models.FormatJPG, models.FormatJPEG, models.FormatWebP, models.FormatSVG},
	models.FormatJPG:  {models.FormatPNG, models.FormatWebP, models.FormatSVG},
	models.FormatJPEG: {models.FormatPNG, models.FormatWebP, models.FormatSVG},
	models.FormatWebP: {models.FormatPNG, models.FormatJPG, models.FormatJPEG, models.FormatSVG},
	models.FormatSVG:  {models.FormatPNG, models.FormatJPG, models.FormatJPEG, models.FormatWebP},
}

var videoFormats = []models.MediaFormat{
	models.FormatMP4, models.FormatWebM, models.FormatMOV,
	models.FormatAVI, models.FormatFLV, models.FormatMKV,
}

// Describe returns the descriptor for format, or an UnknownFormat failure.
func Describe(format models.MediaFormat) (models.FormatDescriptor, error) {
	d, ok := descriptors[format]
	if !ok {
		return models.FormatDescriptor{}, failures.UnknownFormat(string(format))
	}
	// ExtraFlags is shared; hand out a copy.
	d.ExtraFlags = append([]string(nil), d.ExtraFlags...)
	return d, nil
}

// IsImageFormat reports whether format is a registered still-image format.
func IsImageFormat(format models.MediaFormat) bool {
	d, ok := descriptors[format]
	return ok && d.Kind == models.KindImage
}

// IsVideoFormat reports whether format is a registered video container.
func IsVideoFormat(format models.MediaFormat) bool {
	d, ok := descriptors[format]
	return ok && d.Kind == models.KindVideo
}

// IsConversionSupported consults the static allow-list. Identity and
// cross-kind pairs are never supported.
func IsConversionSupported(from, to models.MediaFormat) bool {
	if from == to {
		return false
	}
	if IsVideoFormat(from) && IsVideoFormat(to) {
		return true
	}
	for _, t := range imageTargets[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Validate returns the descriptors of a supported pair, or the matching
// UnknownFormat / UnsupportedConversion failure.
func Validate(from, to models.MediaFormat) (models.FormatDescriptor, models.FormatDescriptor, error) {
	src, err := Describe(from)
	if err != nil {
		return models.FormatDescriptor{}, models.FormatDescriptor{}, err
	}
	dst, err := Describe(to)
	if err != nil {
		return models.FormatDescriptor{}, models.FormatDescriptor{}, err
	}
	if !IsConversionSupported(from, to) {
		return models.FormatDescriptor{}, models.FormatDescriptor{}, failures.UnsupportedConversion(string(from), string(to))
	}
	return src, dst, nil
}

// All returns every registered format, images first, each group sorted.
func All() []models.MediaFormat {
	out := make([]models.MediaFormat, 0, len(descriptors))
	for f := range descriptors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := descriptors[out[i]].Kind, descriptors[out[j]].Kind
		if ki != kj {
			return ki == models.KindImage
		}
		return out[i] < out[j]
	})
	return out
}

// Targets lists the formats from can be converted to, in table order.
func Targets(from models.MediaFormat) []models.MediaFormat {
	if IsVideoFormat(from) {
		out := make([]models.MediaFormat, 0, len(videoFormats)-1)
		for _, f := range videoFormats {
			if f != from {
				out = append(out, f)
			}
		}
		return out
	}
	return append([]models.MediaFormat(nil), imageTargets[from]...)
}
