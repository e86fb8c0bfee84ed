// Package contextkeys holds the typed request-context keys shared between the
// auth middleware and handlers.
package contextkeys

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// UserID is the context key for the authenticated user's ID.
	UserID contextKey = "voyasim.userID"
	// UserEmail is the context key for the authenticated user's email.
	UserEmail contextKey = "voyasim.userEmail"
	// UserRole is the context key for the authenticated user's role.
	UserRole contextKey = "voyasim.userRole"
)

// UserIDFrom returns the authenticated user's ID, or "" when the request is
// unauthenticated.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(UserID).(string)
	return id
}
