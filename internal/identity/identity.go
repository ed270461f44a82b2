// Package identity provides anonymous per-device operator identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"
)

const (
	OperatorCookieName   = "debate_panel_operator"
	operatorCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const (
	operatorIDKey contextKey = iota
	operatorNameKey
)

var operatorIDPattern = regexp.MustCompile(`^op_[a-f0-9]{32}$`)

// OperatorIDFromContext extracts the operator ID from the request context.
func OperatorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(operatorIDKey).(string); ok {
		return v
	}
	return ""
}

// OperatorNameFromContext extracts the short display name of the operator.
func OperatorNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(operatorNameKey).(string); ok {
		return v
	}
	return ""
}

// WithOperator returns ctx carrying the given operator ID.
func WithOperator(ctx context.Context, operatorID string) context.Context {
	ctx = context.WithValue(ctx, operatorIDKey, operatorID)
	return context.WithValue(ctx, operatorNameKey, deriveName(operatorID))
}

func generateOperatorID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate operator id: %w", err)
	}
	return "op_" + hex.EncodeToString(buf), nil
}

func isValidOperatorID(id string) bool {
	return operatorIDPattern.MatchString(id)
}

func deriveName(operatorID string) string {
	if len(operatorID) > 11 {
		return "operator-" + operatorID[len(operatorID)-8:]
	}
	return "operator"
}

func setOperatorCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     OperatorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(operatorCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(operatorCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateOperatorID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(OperatorCookieName); err == nil && isValidOperatorID(c.Value) {
		setOperatorCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateOperatorID()
	if err != nil {
		return "", err
	}
	setOperatorCookie(w, id, isDev)
	return id, nil
}

// Middleware injects an anonymous per-device operator identity.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operatorID, err := getOrCreateOperatorID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish operator identity"}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), operatorID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
