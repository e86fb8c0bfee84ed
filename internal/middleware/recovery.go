package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/voyasim/backend/internal/handler"
)

// Recovery catches panics and returns a 500 instead of crashing the server.
// The request line is logged with the stack so a panic inside a webhook
// delivery can be matched back to its event.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				handler.JSON(w, http.StatusInternalServerError, map[string]string{
					"error": "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
