package encoder

import (
	"fmt"

	"mediaconv/failures"
	"mediaconv/models"
)

type videoTier struct {
	crf   string
	scale string
}

var videoTiers = map[models.Quality]videoTier{
	models.QualityLow:    {crf: "28", scale: "iw*0.5:-2"},
	models.QualityMedium: {crf: "23", scale: "iw:-2"},
	models.QualityHigh:   {crf: "18", scale: "iw:-2"},
}

// effortFlags returns the codec-specific speed/effort flag. Codec families
// without a mapping get none.
func effortFlags(codec string, speed models.Speed) []string {
	switch codec {
	case "libx264":
		preset := map[models.Speed]string{
			models.SpeedFast: "ultrafast", models.SpeedMedium: "medium", models.SpeedSlow: "slow",
		}[speed]
		return []string{"-preset", preset}
	case "libvpx-vp9":
		cpu := map[models.Speed]string{
			models.SpeedFast: "8", models.SpeedMedium: "4", models.SpeedSlow: "0",
		}[speed]
		return []string{"-cpu-used", cpu}
	}
	return nil
}

// BuildVideo re-encodes with the target's codecs:
// -i in -c:v V [effort] -crf N -vf scale=S -threads auto -c:a A -b:a 128k [extra] -y out
func BuildVideo(_, to models.FormatDescriptor, opts models.ConversionOptions, in, out string) ([]string, error) {
	if to.VideoCodec == "" || to.AudioCodec == "" {
		return nil, failures.EncodingFailed(fmt.Errorf("format %s has no codecs configured", to.Format))
	}
	opts = opts.Normalize()
	tier, ok := videoTiers[opts.Quality]
	if !ok {
		return nil, failures.EncodingFailed(fmt.Errorf("invalid quality %q", opts.Quality))
	}

	args := []string{"-i", in, "-c:v", to.VideoCodec}
	args = append(args, effortFlags(to.VideoCodec, opts.Speed)...)
	args = append(args,
		"-crf", tier.crf,
		"-vf", "scale="+tier.scale,
		"-threads", "auto",
		"-c:a", to.AudioCodec,
		"-b:a", "128k",
	)
	args = append(args, to.ExtraFlags...)
	return append(args, "-y", out), nil
}
