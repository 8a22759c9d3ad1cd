package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

const inputPlaceholder = "{input}"

// Result is the extractor output for one clip.
type Result struct {
	Text     string `json:"text"`
	Phonemes string `json:"phonemes"`
}

// Extractor turns a normalized WAV file into text and a phonetic transcription.
type Extractor interface {
	Extract(ctx context.Context, wavPath string) (Result, error)
}

// CommandExtractor runs a local speech model. The WAV is piped on stdin unless
// an argument contains {input}, which is replaced by the file path. The process
// must print a single JSON object with "text" and "phonemes".
type CommandExtractor struct {
	Path string
	Args []string
	Env  []string
}

// NewCommandExtractor splits a command line on whitespace.
func NewCommandExtractor(commandLine string) (*CommandExtractor, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("extractor command is required")
	}
	return &CommandExtractor{Path: fields[0], Args: fields[1:]}, nil
}

func (e *CommandExtractor) Extract(ctx context.Context, wavPath string) (Result, error) {
	args := make([]string, len(e.Args))
	usesPath := false
	for i, arg := range e.Args {
		if strings.Contains(arg, inputPlaceholder) {
			usesPath = true
			arg = strings.ReplaceAll(arg, inputPlaceholder, wavPath)
		}
		args[i] = arg
	}

	c := command{path: e.Path, args: args}
	if len(e.Env) > 0 {
		c.env = append(os.Environ(), e.Env...)
	}
	if !usesPath {
		f, err := os.Open(wavPath)
		if err != nil {
			return Result{}, err
		}
		defer f.Close()
		c.stdin = f
	}

	var stdout bytes.Buffer
	c.stdout = &stdout
	if err := run(ctx, c); err != nil {
		return Result{}, err
	}
	return parseResult(stdout.Bytes())
}

func parseResult(raw []byte) (Result, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Result{}, errors.New("extractor produced no output")
	}
	// models often log to stdout first; the result is the last line
	if i := bytes.LastIndexByte(raw, '\n'); i >= 0 {
		raw = bytes.TrimSpace(raw[i+1:])
	}
	res, err := decodeResult(raw)
	if err != nil {
		return Result{}, fmt.Errorf("parse extractor output: %w", err)
	}
	return res, nil
}

// wireResult distinguishes a missing key from an empty transcription.
type wireResult struct {
	Text     *string `json:"text"`
	Phonemes *string `json:"phonemes"`
}

// decodeResult requires a JSON object carrying both "text" and "phonemes".
func decodeResult(raw []byte) (Result, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Result{}, errors.New("result is not a JSON object")
	}
	var wire wireResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Result{}, err
	}
	if wire.Text == nil || wire.Phonemes == nil {
		return Result{}, errors.New(`result is missing "text" or "phonemes"`)
	}
	return Result{Text: *wire.Text, Phonemes: *wire.Phonemes}, nil
}
