package api

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// requestLogger returns the global logger tagged with the request ID, method and path.
func requestLogger(r *http.Request) *zerolog.Logger {
	if r == nil {
		return &log.Logger
	}

	logger := log.With().
		Str("request_id", GetRequestID(r)).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Logger()
	return &logger
}
