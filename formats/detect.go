package formats

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"mediaconv/failures"
	"mediaconv/models"
)

// mimeFormats maps sniffed MIME types back to a canonical format.
var mimeFormats = map[string]models.MediaFormat{
	"image/png":        models.FormatPNG,
	"image/jpeg":       models.FormatJPG,
	"image/webp":       models.FormatWebP,
	"image/svg+xml":    models.FormatSVG,
	"video/mp4":        models.FormatMP4,
	"video/webm":       models.FormatWebM,
	"video/quicktime":  models.FormatMOV,
	"video/x-msvideo":  models.FormatAVI,
	"video/x-flv":      models.FormatFLV,
	"video/x-matroska": models.FormatMKV,
}

// Detect identifies the source format of a file. The file name extension is
// preferred when it is registered and agrees with the sniffed MIME type;
// otherwise the content decides. jpg and jpeg share a MIME type, so the
// extension keeps whichever spelling the user chose.
func Detect(name string, data []byte) (models.MediaFormat, error) {
	ext := models.MediaFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."))
	byExt, extErr := Describe(ext)

	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if f, ok := mimeFormats[m.String()]; ok {
			if extErr == nil && byExt.MimeType == m.String() {
				return ext, nil
			}
			return f, nil
		}
	}

	if extErr == nil {
		return ext, nil
	}
	return "", failures.UnknownFormat(fmt.Sprintf("%s (%s)", name, mt.String()))
}

// Info is the header-level description of a decoded still image.
type Info struct {
	Format string
	Width  int
	Height int
}

// ImageInfo decodes only the header of a png, jpeg or webp payload.
func ImageInfo(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %w", err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
