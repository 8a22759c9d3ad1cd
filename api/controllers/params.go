package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func chiParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}
