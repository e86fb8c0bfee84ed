package middleware

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// Logger logs each HTTP request with method, path, status, and duration.
// Webhook deliveries additionally log the client IP, since those endpoints
// are unauthenticated and the source matters when reconciling an event.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		if strings.HasPrefix(r.URL.Path, "/api/webhooks/") {
			log.Printf("%s %s %d %s from=%s",
				r.Method,
				r.URL.Path,
				ww.status,
				time.Since(start).Round(time.Millisecond),
				extractClientIP(r),
			)
			return
		}

		log.Printf("%s %s %d %s",
			r.Method,
			r.URL.Path,
			ww.status,
			time.Since(start).Round(time.Millisecond),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade on the watch endpoint pass through the
// logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
