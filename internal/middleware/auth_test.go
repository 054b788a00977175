package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpdesk/internal/clients"
	"helpdesk/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type anonymousGateway struct{ gateway.Gateway }

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() error { return nil }

func (anonymousGateway) CurrentPrincipal(context.Context) (*gateway.Principal, error) {
	return nil, nil
}

func (anonymousGateway) SubscribeAuthChanges(gateway.AuthHandler) (gateway.Subscription, error) {
	return noopSubscription{}, nil
}

func newRegistry(t *testing.T) *clients.Registry {
	t.Helper()
	codec, err := clients.NewCodec([]byte("0123456789abcdef0123456789abcdef"), nil)
	require.NoError(t, err)
	r, err := clients.New(func(string) gateway.Gateway { return anonymousGateway{} }, clients.Options{
		Codec:            codec,
		GuardWaitTimeout: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestGinAttachClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := newRegistry(t)

	r := gin.New()
	r.Use(GinAttachClient(NewClientMiddleware(registry)))
	r.GET("/whoami", func(c *gin.Context) {
		client, ok := ClientFromContext(c.Request.Context())
		require.True(t, ok)

		m, ok := ManagerFromContext(c.Request.Context())
		require.True(t, ok)
		assert.Same(t, client.Manager, m)

		g, ok := GuardLookup(c.Request)
		require.True(t, ok)
		assert.Same(t, client.Guard, g)

		c.String(http.StatusOK, client.ID)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Body.String()
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, id, w.Body.String())
}

func TestGinAttachClientAbortsWhenRegistryClosed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := newRegistry(t)
	require.NoError(t, registry.Close())

	reached := false
	r := gin.New()
	r.Use(GinAttachClient(NewClientMiddleware(registry)))
	r.GET("/", func(c *gin.Context) { reached = true })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, reached)
}

func TestContextHelpersWithoutClient(t *testing.T) {
	_, ok := ManagerFromContext(context.Background())
	assert.False(t, ok)
	_, ok = GuardLookup(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
