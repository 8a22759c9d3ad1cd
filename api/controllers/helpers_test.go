package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/api/middleware"
	"github.com/angelmondragon/daybook-backend/internal/access"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testActor() access.Actor {
	return access.Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: enums.RoleStudent}
}

// withRoute attaches the actor, a bearer token and chi URL params to req.
func withRoute(req *http.Request, actor *access.Actor, params map[string]string) *http.Request {
	ctx := req.Context()
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
		ctx = middleware.WithBearerToken(ctx, "token-123")
	}
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	return req.WithContext(ctx)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, body io.Reader) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}
