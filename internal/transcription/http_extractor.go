package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxErrorBody  = 2048
	maxResultBody = 4 << 20
)

// HTTPExtractor posts the WAV to a remote speech service as multipart "audio".
// The caller's bearer token from the job is forwarded; FallbackToken is used
// for recovered jobs that carry none.
type HTTPExtractor struct {
	URL           string
	FallbackToken string
	Client        *http.Client
}

func NewHTTPExtractor(url, fallbackToken string, timeout time.Duration) (*HTTPExtractor, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("extractor url is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPExtractor{
		URL:           url,
		FallbackToken: fallbackToken,
		Client:        &http.Client{Timeout: timeout},
	}, nil
}

func (e *HTTPExtractor) Extract(ctx context.Context, wavPath string) (Result, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("audio", filepath.Base(wavPath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, pr)
	if err != nil {
		_ = pr.Close()
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if token := e.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call extractor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Result{}, fmt.Errorf("extractor http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBody))
	if err != nil {
		return Result{}, fmt.Errorf("read extractor response: %w", err)
	}
	res, err := decodeResult(body)
	if err != nil {
		return Result{}, fmt.Errorf("parse extractor response: %w", err)
	}
	return res, nil
}

func (e *HTTPExtractor) token(ctx context.Context) string {
	if token := AuthTokenFromContext(ctx); token != "" {
		return token
	}
	return e.FallbackToken
}
