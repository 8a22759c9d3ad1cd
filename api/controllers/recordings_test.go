package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/internal/access"
	"github.com/angelmondragon/daybook-backend/internal/recordings"
	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/daybook-backend/pkg/errors"
	"github.com/angelmondragon/daybook-backend/pkg/storage"
)

type stubRecordingsService struct {
	uploadFn func(ctx context.Context, actor access.Actor, input recordings.UploadInput) (*models.Recording, error)
	deleteFn func(ctx context.Context, actor access.Actor, dayID, recordingID uuid.UUID) error
	listFn   func(ctx context.Context, actor access.Actor, dayID uuid.UUID) ([]models.Recording, error)
	openFn   func(ctx context.Context, actor access.Actor, recordingID uuid.UUID) (io.ReadCloser, *storage.BlobInfo, error)
}

func (s *stubRecordingsService) Upload(ctx context.Context, actor access.Actor, input recordings.UploadInput) (*models.Recording, error) {
	return s.uploadFn(ctx, actor, input)
}

func (s *stubRecordingsService) Delete(ctx context.Context, actor access.Actor, dayID, recordingID uuid.UUID) error {
	return s.deleteFn(ctx, actor, dayID, recordingID)
}

func (s *stubRecordingsService) List(ctx context.Context, actor access.Actor, dayID uuid.UUID) ([]models.Recording, error) {
	return s.listFn(ctx, actor, dayID)
}

func (s *stubRecordingsService) OpenAudio(ctx context.Context, actor access.Actor, recordingID uuid.UUID) (io.ReadCloser, *storage.BlobInfo, error) {
	return s.openFn(ctx, actor, recordingID)
}

func multipartUpload(t *testing.T, audio []byte, duration string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if duration != "" {
		if err := mw.WriteField("duration_ms", duration); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if audio != nil {
		part, err := mw.CreateFormFile("audio", "../clip.wav")
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, mw.FormDataContentType()
}

func TestRecordingUploadPassesFormToService(t *testing.T) {
	actor := testActor()
	dayID := uuid.New()
	blobID := uuid.New()
	svc := &stubRecordingsService{
		uploadFn: func(_ context.Context, _ access.Actor, input recordings.UploadInput) (*models.Recording, error) {
			if input.DayID != dayID || input.Field != "reading" || input.DurationMS != 4200 {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.FileName != "clip.wav" {
				t.Fatalf("expected sanitized file name, got %q", input.FileName)
			}
			raw, err := io.ReadAll(input.Audio)
			if err != nil || string(raw) != "RIFF-audio" {
				t.Fatalf("unexpected audio %q err=%v", raw, err)
			}
			return &models.Recording{ID: uuid.New(), DayID: dayID, UserID: actor.UserID, Field: enums.ChecklistFieldReading, BlobID: &blobID, DurationMS: 4200}, nil
		},
	}

	body, contentType := multipartUpload(t, []byte("RIFF-audio"), "4200")
	req := httptest.NewRequest(http.MethodPut, "/", body)
	req.Header.Set("Content-Type", contentType)
	req = withRoute(req, &actor, map[string]string{"dayId": dayID.String(), "field": "reading"})
	resp := httptest.NewRecorder()
	RecordingUpload(svc, UploadLimits{MaxBytes: 1 << 20}, testLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(decodeEnvelope(t, resp.Body).Data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["has_audio"] != true || out["field"] != "reading" {
		t.Fatalf("unexpected body %v", out)
	}
	if _, leaked := out["blob_id"]; leaked {
		t.Fatalf("blob id must not be exposed")
	}
}

func TestRecordingUploadValidation(t *testing.T) {
	actor := testActor()
	svc := &stubRecordingsService{
		uploadFn: func(context.Context, access.Actor, recordings.UploadInput) (*models.Recording, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	cases := []struct {
		name     string
		field    string
		audio    []byte
		duration string
	}{
		{name: "unknown field", field: "dancing", audio: []byte("x"), duration: "1"},
		{name: "negative duration", field: "reading", audio: []byte("x"), duration: "-5"},
		{name: "non numeric duration", field: "reading", audio: []byte("x"), duration: "long"},
		{name: "missing audio", field: "reading", duration: "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := multipartUpload(t, tc.audio, tc.duration)
			req := httptest.NewRequest(http.MethodPut, "/", body)
			req.Header.Set("Content-Type", contentType)
			req = withRoute(req, &actor, map[string]string{"dayId": uuid.NewString(), "field": tc.field})
			resp := httptest.NewRecorder()
			RecordingUpload(svc, UploadLimits{}, testLogger()).ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
		})
	}
}

func TestRecordingUploadTooLarge(t *testing.T) {
	actor := testActor()
	svc := &stubRecordingsService{}
	body, contentType := multipartUpload(t, bytes.Repeat([]byte("a"), 256<<10), "1")
	req := httptest.NewRequest(http.MethodPut, "/", body)
	req.Header.Set("Content-Type", contentType)
	req = withRoute(req, &actor, map[string]string{"dayId": uuid.NewString(), "field": "reading"})
	resp := httptest.NewRecorder()
	RecordingUpload(svc, UploadLimits{MaxBytes: 1024}, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", resp.Code)
	}
}

func TestRecordingUploadLocked(t *testing.T) {
	actor := testActor()
	svc := &stubRecordingsService{
		uploadFn: func(context.Context, access.Actor, recordings.UploadInput) (*models.Recording, error) {
			return nil, pkgerrors.New(pkgerrors.CodeLocked, "day is being transcribed")
		},
	}
	body, contentType := multipartUpload(t, []byte("x"), "")
	req := httptest.NewRequest(http.MethodPut, "/", body)
	req.Header.Set("Content-Type", contentType)
	req = withRoute(req, &actor, map[string]string{"dayId": uuid.NewString(), "field": "reading"})
	resp := httptest.NewRecorder()
	RecordingUpload(svc, UploadLimits{}, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusLocked {
		t.Fatalf("expected 423 got %d", resp.Code)
	}
	if got := resp.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("expected Retry-After 5, got %q", got)
	}
}

func TestListRecordings(t *testing.T) {
	actor := testActor()
	dayID := uuid.New()
	text := "hello"
	svc := &stubRecordingsService{
		listFn: func(context.Context, access.Actor, uuid.UUID) ([]models.Recording, error) {
			return []models.Recording{
				{ID: uuid.New(), DayID: dayID, Field: enums.ChecklistFieldGreeting, Text: &text},
				{ID: uuid.New(), DayID: dayID, Field: enums.ChecklistFieldReading},
			}, nil
		},
	}
	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), &actor, map[string]string{"dayId": dayID.String()})
	resp := httptest.NewRecorder()
	ListRecordings(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var rows []map[string]any
	if err := json.Unmarshal(decodeEnvelope(t, resp.Body).Data, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[0]["text"] != "hello" || rows[1]["text"] != nil {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestDeleteRecording(t *testing.T) {
	actor := testActor()
	dayID, recordingID := uuid.New(), uuid.New()
	called := false
	svc := &stubRecordingsService{
		deleteFn: func(_ context.Context, _ access.Actor, gotDay, gotRec uuid.UUID) error {
			called = gotDay == dayID && gotRec == recordingID
			return nil
		},
	}
	req := withRoute(httptest.NewRequest(http.MethodDelete, "/", nil), &actor, map[string]string{
		"dayId":       dayID.String(),
		"recordingId": recordingID.String(),
	})
	resp := httptest.NewRecorder()
	DeleteRecording(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent || !called {
		t.Fatalf("expected 204 and service call, got %d called=%v", resp.Code, called)
	}
}

func TestRecordingAudioStreams(t *testing.T) {
	actor := testActor()
	recordingID := uuid.New()
	svc := &stubRecordingsService{
		openFn: func(context.Context, access.Actor, uuid.UUID) (io.ReadCloser, *storage.BlobInfo, error) {
			return io.NopCloser(strings.NewReader("OggS-bytes")), &storage.BlobInfo{
				ContentType: "audio/ogg",
				FileName:    "reading.ogg",
				Length:      10,
			}, nil
		},
	}
	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), &actor, map[string]string{"recordingId": recordingID.String()})
	resp := httptest.NewRecorder()
	RecordingAudio(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("Content-Type") != "audio/ogg" || resp.Header().Get("Content-Length") != "10" {
		t.Fatalf("unexpected headers %v", resp.Header())
	}
	if !strings.Contains(resp.Header().Get("Content-Disposition"), "reading.ogg") {
		t.Fatalf("expected file name in disposition")
	}
	if resp.Body.String() != "OggS-bytes" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestRecordingAudioNoClip(t *testing.T) {
	actor := testActor()
	svc := &stubRecordingsService{
		openFn: func(context.Context, access.Actor, uuid.UUID) (io.ReadCloser, *storage.BlobInfo, error) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "recording has no audio")
		},
	}
	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), &actor, map[string]string{"recordingId": uuid.NewString()})
	resp := httptest.NewRecorder()
	RecordingAudio(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
