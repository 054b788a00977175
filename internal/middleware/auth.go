package middleware

import (
	"context"
	"net/http"

	"helpdesk/internal/clients"
	"helpdesk/internal/guard"
	"helpdesk/internal/identity"
	"helpdesk/internal/logger"
)

// unexported, collision-proof context key
type clientContextKeyType struct{}

var clientKey = clientContextKeyType{}

// ClientFromContext returns the browser client attached by ClientMiddleware.
func ClientFromContext(ctx context.Context) (*clients.Client, bool) {
	c, ok := ctx.Value(clientKey).(*clients.Client)
	return c, ok
}

// ManagerFromContext returns the session manager of the requesting client.
func ManagerFromContext(ctx context.Context) (*identity.Manager, bool) {
	c, ok := ClientFromContext(ctx)
	if !ok {
		return nil, false
	}
	return c.Manager, true
}

// GuardLookup finds the route guard of the requesting client.
func GuardLookup(r *http.Request) (*guard.Guard, bool) {
	c, ok := ClientFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return c.Guard, true
}

type ClientMiddleware struct {
	Registry *clients.Registry
}

func NewClientMiddleware(registry *clients.Registry) *ClientMiddleware {
	return &ClientMiddleware{Registry: registry}
}

// AttachClient resolves the browser client from its cookie, issuing one
// when needed, and stores it in the request context.
func (m *ClientMiddleware) AttachClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := m.Registry.Resolve(w, r)
		if err != nil {
			logger.Error("failed to resolve client", map[string]any{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}

		ctx := context.WithValue(r.Context(), clientKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
