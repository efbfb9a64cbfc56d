package encoder

import (
	"mediaconv/models"
)

// imageEncoder is a single-frame ffmpeg encoder with a per-tier quality flag.
type imageEncoder struct {
	codec  string
	flag   string
	values map[models.Quality]string
}

// mjpeg's -q:v runs the other way: lower is better.
var jpegEncoder = imageEncoder{
	codec: "mjpeg",
	flag:  "-q:v",
	values: map[models.Quality]string{
		models.QualityLow: "15", models.QualityMedium: "5", models.QualityHigh: "2",
	},
}

var imageEncoders = map[models.MediaFormat]imageEncoder{
	models.FormatJPG:  jpegEncoder,
	models.FormatJPEG: jpegEncoder,
	models.FormatWebP: {
		codec: "libwebp",
		flag:  "-quality",
		values: map[models.Quality]string{
			models.QualityLow: "50", models.QualityMedium: "75", models.QualityHigh: "90",
		},
	},
	models.FormatPNG: {
		codec: "png",
		flag:  "-compression_level",
		values: map[models.Quality]string{
			models.QualityLow: "3", models.QualityMedium: "6", models.QualityHigh: "9",
		},
	},
}

// build ignores speed and the target's extra flags.
func (e imageEncoder) build(_, _ models.FormatDescriptor, opts models.ConversionOptions, in, out string) ([]string, error) {
	value := e.values[opts.Normalize().Quality]
	return []string{"-i", in, "-c:v", e.codec, e.flag, value, "-frames:v", "1", "-y", out}, nil
}

// BuildImageFallback lets ffmpeg pick the encoder from the output name.
func BuildImageFallback(_, _ models.FormatDescriptor, _ models.ConversionOptions, in, out string) ([]string, error) {
	return []string{"-i", in, "-q:v", "75", "-frames:v", "1", "-y", out}, nil
}
