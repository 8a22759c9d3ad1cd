package transcription

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
)

// DefaultSampleRate is the canonical rate handed to the extractor.
const DefaultSampleRate = 16000

// Normalizer converts an audio file of any supported container to mono WAV.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath string, out io.Writer) error
}

// FFmpegNormalizer shells out to ffmpeg.
type FFmpegNormalizer struct {
	Path       string
	SampleRate int
}

func NewFFmpegNormalizer(path string, sampleRate int) *FFmpegNormalizer {
	if path == "" {
		path = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &FFmpegNormalizer{Path: path, SampleRate: sampleRate}
}

// Args returns the ffmpeg argument list for inputPath.
func (n *FFmpegNormalizer) Args(inputPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", inputPath,
		"-ac", "1", "-ar", strconv.Itoa(n.SampleRate),
		"-f", "wav", "pipe:1",
	}
}

func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath string, out io.Writer) error {
	if _, err := os.Stat(inputPath); err != nil {
		return err
	}
	if out == nil {
		return errors.New("normalize output is required")
	}
	return run(ctx, command{path: n.Path, args: n.Args(inputPath), stdout: out})
}
