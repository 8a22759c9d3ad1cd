package recordings

import (
	"bytes"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen covers the headers mimetype inspects for audio containers.
const sniffLen = 3072

var allowedAudioTypes = []string{
	"audio/webm",
	"video/webm",
	"audio/ogg",
	"application/ogg",
	"audio/mpeg",
	"audio/mp4",
	"audio/x-m4a",
	"audio/wav",
	"audio/x-wav",
	"audio/aac",
	"audio/flac",
	"audio/amr",
}

// sniffAudio reads the leading bytes of r, detects the container and returns a
// reader that replays them.
func sniffAudio(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head = head[:n]
	if n == 0 {
		return "", nil, nil
	}
	detected := mimetype.Detect(head)
	return detected.String(), io.MultiReader(bytes.NewReader(head), r), nil
}

func isAllowedAudio(contentType string) bool {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if base == "" {
		return false
	}
	for _, candidate := range allowedAudioTypes {
		if candidate == base {
			return true
		}
	}
	return false
}
