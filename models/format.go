package models

import (
	"fmt"
	"strings"
)

// MediaFormat identifies one supported container/image format by its short name.
type MediaFormat string

// Image formats
const (
	FormatPNG  MediaFormat = "png"
	FormatJPG  MediaFormat = "jpg"
	FormatJPEG MediaFormat = "jpeg"
	FormatWebP MediaFormat = "webp"
	FormatSVG  MediaFormat = "svg"
)

// Video formats
const (
	FormatMP4  MediaFormat = "mp4"
	FormatWebM MediaFormat = "webm"
	FormatMOV  MediaFormat = "mov"
	FormatAVI  MediaFormat = "avi"
	FormatFLV  MediaFormat = "flv"
	FormatMKV  MediaFormat = "mkv"
)

// MediaKind separates still images from audio/video streams.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// FormatDescriptor holds everything the engine needs to know about one format.
// Image descriptors never carry codecs; image encoders are picked by the
// command builder.
type FormatDescriptor struct {
	Format     MediaFormat `json:"format" yaml:"format"`
	MimeType   string      `json:"mime_type" yaml:"mime_type"`
	Extension  string      `json:"extension" yaml:"extension"` // includes the leading dot
	Kind       MediaKind   `json:"kind" yaml:"kind"`
	VideoCodec string      `json:"video_codec,omitempty" yaml:"video_codec,omitempty"`
	AudioCodec string      `json:"audio_codec,omitempty" yaml:"audio_codec,omitempty"`
	ExtraFlags []string    `json:"extra_flags,omitempty" yaml:"extra_flags,omitempty"`
}

// ParseFormat normalizes user input such as ".PNG" or "Mp4" into a MediaFormat.
// It does not check the registry; use formats.Describe for that.
func ParseFormat(s string) (MediaFormat, error) {
	f := strings.ToLower(strings.TrimSpace(s))
	f = strings.TrimPrefix(f, ".")
	if f == "" {
		return "", fmt.Errorf("empty format")
	}
	return MediaFormat(f), nil
}

func (f MediaFormat) String() string {
	return string(f)
}
