package transcode

import (
	"strconv"

	"reel/internal/config"
)

// buildArgs assembles the ffmpeg invocation producing the library format.
// Progress key/value output goes to stdout; diagnostics stay on stderr.
func buildArgs(cfg *config.Config, inputPath, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-c:v", cfg.Transcode.VideoCodec,
	}
	if cfg.Transcode.Preset != "" {
		args = append(args, "-preset", cfg.Transcode.Preset)
	}
	if cfg.Transcode.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(cfg.Transcode.CRF))
	}
	args = append(args,
		"-c:a", cfg.Transcode.AudioCodec,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		outputPath,
	)
	return args
}
