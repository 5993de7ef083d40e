package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"tinyserve/internal/logging"
)

// zlog is the structured logger of the HTTP layer; silent until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// requestLogLevel lets a caller raise or lower logging for one request
// through ?log= or the X-Log-Level header.
func requestLogLevel(r *http.Request) zerolog.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return zerolog.DebugLevel
		}
		return logging.ParseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return logging.ParseLevel(v)
	}
	return zerolog.InfoLevel
}

// RequestLogger logs one line per request at the request's log level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		lvl := requestLogLevel(r)
		if lvl == zerolog.Disabled {
			return
		}
		zlog.WithLevel(lvl).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("dur", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func logInfo(r *http.Request, msg string) {
	zlog.Info().Str("request_id", middleware.GetReqID(r.Context())).Msg(msg)
}
