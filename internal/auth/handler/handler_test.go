package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"helpdesk/internal/auth"
	"helpdesk/internal/auth/provider"
	"helpdesk/internal/clients"
	"helpdesk/internal/gateway"
	"helpdesk/internal/guard"
	"helpdesk/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var ana = gateway.Principal{ID: "u1", Email: "ana@example.com"}

// memGateway keeps one principal and its profile in memory.
type memGateway struct {
	mu        sync.Mutex
	principal *gateway.Principal
	profiles  map[string]gateway.Profile
	objects   map[string][]byte
	handler   gateway.AuthHandler
}

type memSubscription struct{}

func (memSubscription) Unsubscribe() error { return nil }

func (g *memGateway) Ping(context.Context) error { return nil }

func (g *memGateway) CurrentPrincipal(context.Context) (*gateway.Principal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.principal, nil
}

func (g *memGateway) SubscribeAuthChanges(h gateway.AuthHandler) (gateway.Subscription, error) {
	return memSubscription{}, nil
}

func (g *memGateway) SignInWithPassword(_ context.Context, email, password string) (*gateway.Principal, error) {
	if email != ana.Email || password != "correct-horse" {
		return nil, &gateway.Error{Op: "sign in", Err: gateway.ErrInvalidCredentials}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.principal = &ana
	return &ana, nil
}

func (g *memGateway) ResendConfirmation(context.Context, string) error { return nil }

func (g *memGateway) Register(_ context.Context, email, _ string, _ gateway.Metadata) (*gateway.Registration, error) {
	if email == ana.Email {
		return nil, &gateway.Error{Op: "register", Err: gateway.ErrAlreadyRegistered}
	}
	return &gateway.Registration{Principal: gateway.Principal{ID: "u9", Email: email}}, nil
}

func (g *memGateway) SignOut(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.principal = nil
	return nil
}

func (g *memGateway) FetchProfile(_ context.Context, id string) (*gateway.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.profiles[id]
	if !ok {
		return nil, &gateway.Error{Op: "fetch profile", Err: gateway.ErrNotFound}
	}
	return &p, nil
}

func (g *memGateway) InsertProfile(_ context.Context, p gateway.Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[p.ID] = p
	return nil
}

func (g *memGateway) UpdateProfile(_ context.Context, id string, u gateway.ProfileUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.profiles[id]
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.AvatarURL != nil {
		p.AvatarURL = u.AvatarURL
	}
	g.profiles[id] = p
	return nil
}

func (g *memGateway) UploadObject(_ context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[path] = data
	return nil
}

func (g *memGateway) PublicURL(path string) string {
	return "https://desk.example.com/storage/" + path
}

type fakeAccounts struct {
	gw        *memGateway
	confirmed []string
}

func (a *fakeAccounts) ConfirmEmail(_ context.Context, clientID, token string) (*gateway.Principal, error) {
	if token != "good-token" {
		return nil, &gateway.Error{Op: "confirm email", Err: gateway.ErrInvalidToken}
	}
	a.confirmed = append(a.confirmed, clientID)
	a.gw.mu.Lock()
	a.gw.principal = &ana
	a.gw.mu.Unlock()
	return &ana, nil
}

func (a *fakeAccounts) SignInWithIdentity(_ context.Context, _ string, id *auth.Identity) (*gateway.Principal, error) {
	if !id.EmailVerified {
		return nil, &gateway.Error{Op: "sign in with identity", Err: gateway.ErrInvalidCredentials}
	}
	a.gw.mu.Lock()
	a.gw.principal = &ana
	a.gw.mu.Unlock()
	return &ana, nil
}

type stubProvider struct{ verified bool }

func (stubProvider) Name() string { return "stub" }

func (stubProvider) AuthCodeURL(state, verifier string) string {
	return "https://idp.example.com/auth?" + url.Values{
		"state":          {state},
		"code_challenge": {oauth2.S256ChallengeFromVerifier(verifier)},
	}.Encode()
}

func (p stubProvider) ExchangeCode(_ context.Context, code, verifier string) (*auth.Identity, error) {
	if code != "the-code" || verifier == "" {
		return nil, assert.AnError
	}
	return &auth.Identity{Provider: "stub", ProviderUserID: "sub-1", Email: ana.Email, EmailVerified: p.verified}, nil
}

type harness struct {
	router   *gin.Engine
	gw       *memGateway
	accounts *fakeAccounts
	cookies  []*http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := &memGateway{
		profiles: map[string]gateway.Profile{"u1": {ID: "u1", Name: "Ana", Email: ana.Email}},
		objects:  map[string][]byte{},
	}
	accounts := &fakeAccounts{gw: gw}

	codec, err := clients.NewCodec([]byte("0123456789abcdef0123456789abcdef"), []byte("abcdef0123456789"))
	require.NoError(t, err)
	registry, err := clients.New(func(string) gateway.Gateway { return gw }, clients.Options{
		Codec:            codec,
		GuardWaitTimeout: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	h := NewHandler(provider.NewRegistry(stubProvider{verified: true}), accounts, codec, Options{})

	r := gin.New()
	r.Use(middleware.GinAttachClient(middleware.NewClientMiddleware(registry)))
	h.RegisterRoutes(r)
	api := r.Group("/api")
	api.Use(guard.RequirePrivateAPI(middleware.GuardLookup))
	h.RegisterProfileRoutes(api)

	hr := &harness{router: r, gw: gw, accounts: accounts}
	hr.do(t, http.MethodGet, "/auth/session", "", nil)
	require.Eventually(t, func() bool {
		return hr.state(t)["status"] == "resolved-absent" &&
			hr.do(t, http.MethodGet, "/api/profile", "", nil).Code == http.StatusUnauthorized
	}, time.Second, 5*time.Millisecond)
	return hr
}

// do sends a request as the same browser, keeping its cookies.
func (h *harness) do(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range h.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		h.cookies = append(removeCookie(h.cookies, c.Name), c)
		if c.MaxAge < 0 {
			h.cookies = removeCookie(h.cookies, c.Name)
		}
	}
	return w
}

func removeCookie(cookies []*http.Cookie, name string) []*http.Cookie {
	out := cookies[:0:0]
	for _, c := range cookies {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return out
}

func (h *harness) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	return h.do(t, http.MethodPost, path, "application/json", strings.NewReader(body))
}

func (h *harness) state(t *testing.T) map[string]any {
	t.Helper()
	w := h.do(t, http.MethodGet, "/auth/session", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var s map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return s
}

func TestSignInAndOut(t *testing.T) {
	h := newHarness(t)

	w := h.postJSON(t, "/auth/signin", `{"email":"ana@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"invalid login credentials"}`, w.Body.String())

	w = h.postJSON(t, "/auth/signin", `{"email":"ana@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.postJSON(t, "/auth/signin", `{"email":"ana@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, w.Code)

	s := h.state(t)
	assert.Equal(t, "resolved-present", s["status"])
	assert.Equal(t, "Ana", s["identity"].(map[string]any)["display_name"])

	w = h.do(t, http.MethodPost, "/auth/signout", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "resolved-absent", h.state(t)["status"])
}

func TestSignUp(t *testing.T) {
	h := newHarness(t)

	w := h.postJSON(t, "/auth/signup", `{"email":"new@example.com","password":"pw-123456","name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.postJSON(t, "/auth/signup", `{"email":"ana@example.com","password":"pw-123456","name":"Ana"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.postJSON(t, "/auth/signup", `{"email":"new@example.com","password":"pw-123456","name":"Nova","organization":"Acme"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Check your email")
	assert.Equal(t, "resolved-absent", h.state(t)["status"])
}

func TestConfirm(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/auth/confirm?token=bad", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/auth/confirm?token=good-token", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Len(t, h.accounts.confirmed, 1)
	assert.Equal(t, "resolved-present", h.state(t)["status"], "identity settled before redirect")
}

func TestProfileEndpoints(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	require.Equal(t, http.StatusOK, h.postJSON(t, "/auth/signin", `{"email":"ana@example.com","password":"correct-horse"}`).Code)
	require.Eventually(t, func() bool {
		return h.do(t, http.MethodGet, "/api/profile", "", nil).Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	w = h.do(t, http.MethodPatch, "/api/profile", "application/json", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPatch, "/api/profile", "application/json", strings.NewReader(`{"name":"X"}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/profile", "", nil)
	var ident map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ident))
	assert.Equal(t, "X", ident["display_name"])
	assert.Equal(t, "ana@example.com", ident["email"])
}

func TestUploadAvatar(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.postJSON(t, "/auth/signin", `{"email":"ana@example.com","password":"correct-horse"}`).Code)
	require.Eventually(t, func() bool {
		return h.do(t, http.MethodGet, "/api/profile", "", nil).Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	upload := func(filename string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("avatar", filename)
		require.NoError(t, err)
		_, _ = part.Write([]byte("image-bytes"))
		require.NoError(t, mw.Close())
		return h.do(t, http.MethodPost, "/api/profile/avatar", mw.FormDataContentType(), &body)
	}

	w := upload("notes.txt")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload("me.PNG")
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	avatarURL, _ := res["url"].(string)
	assert.True(t, strings.HasPrefix(avatarURL, "https://desk.example.com/storage/avatars/u1-"))
	assert.True(t, strings.HasSuffix(avatarURL, ".png"))

	identity := h.state(t)["identity"].(map[string]any)
	assert.Equal(t, avatarURL, identity["avatar_url"])
}

func TestRetry(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/session/retry", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	form := url.Values{"redirect": {"/dashboard?tab=open"}}
	w = h.do(t, http.MethodPost, "/session/retry", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard?tab=open", w.Header().Get("Location"))

	form = url.Values{"redirect": {"//evil.example.com"}}
	w = h.do(t, http.MethodPost, "/session/retry", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	assert.Equal(t, http.StatusOK, w.Code, "foreign redirects are ignored")
}

func TestOAuthFlow(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/oauth/login/unknown", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/oauth/login/stub", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	assert.NotEmpty(t, location.Query().Get("code_challenge"))

	t.Run("state mismatch", func(t *testing.T) {
		cookies := h.cookies
		defer func() { h.cookies = cookies }()

		w := h.do(t, http.MethodGet, "/oauth/callback/stub?code=the-code&state=other", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("state differs in last character", func(t *testing.T) {
		cookies := h.cookies
		defer func() { h.cookies = cookies }()

		last := "A"
		if strings.HasSuffix(state, "A") {
			last = "B"
		}
		forged := state[:len(state)-1] + last
		w := h.do(t, http.MethodGet, "/oauth/callback/stub?code=the-code&state="+url.QueryEscape(forged), "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	w = h.do(t, http.MethodGet, "/oauth/callback/stub?code=the-code&state="+url.QueryEscape(state), "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, "resolved-present", h.state(t)["status"])

	w = h.do(t, http.MethodGet, "/oauth/callback/stub?code=the-code&state="+url.QueryEscape(state), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "flow cookie is single use")
}

func TestOAuthProviderError(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/oauth/login/stub", "", nil)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)

	w = h.do(t, http.MethodGet, "/oauth/callback/stub?error=access_denied&state="+url.QueryEscape(location.Query().Get("state")), "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestSafeRedirect(t *testing.T) {
	for target, want := range map[string]bool{
		"/dashboard":          true,
		"/new/1?x=y":          true,
		"":                    false,
		"https://example.com": false,
		"//example.com":       false,
		`/\example.com`:       false,
	} {
		_, ok := safeRedirect(target)
		assert.Equal(t, want, ok, target)
	}
}
