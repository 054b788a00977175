package identity

import (
	"context"
	"errors"
	"io"
	"sync"

	"helpdesk/internal/gateway"
)

// fakeGateway is an in-memory gateway.Gateway. Function fields override
// the default behaviour of the matching method.
type fakeGateway struct {
	mu sync.Mutex

	principal *gateway.Principal
	profiles  map[string]gateway.Profile
	objects   map[string][]byte
	handler   gateway.AuthHandler

	unsubscribed int
	resent       []string
	updates      []gateway.ProfileUpdate

	ping          func(ctx context.Context) error
	signIn        func(ctx context.Context, email, password string) (*gateway.Principal, error)
	resend        func(ctx context.Context, email string) error
	register      func(ctx context.Context, email, password string, meta gateway.Metadata) (*gateway.Registration, error)
	signOut       func(ctx context.Context) error
	fetchProfile  func(ctx context.Context, id string) (*gateway.Profile, error)
	updateProfile func(ctx context.Context, id string, u gateway.ProfileUpdate) error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		profiles: map[string]gateway.Profile{},
		objects:  map[string][]byte{},
	}
}

type fakeSubscription struct{ gw *fakeGateway }

func (s fakeSubscription) Unsubscribe() error {
	s.gw.mu.Lock()
	defer s.gw.mu.Unlock()
	s.gw.handler = nil
	s.gw.unsubscribed++
	return nil
}

// emit delivers an auth change synchronously, the way a single-subscriber
// broker would.
func (g *fakeGateway) emit(event gateway.Event, p *gateway.Principal) {
	g.mu.Lock()
	h := g.handler
	g.mu.Unlock()
	if h != nil {
		h(event, p)
	}
}

func (g *fakeGateway) subscribed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handler != nil
}

func (g *fakeGateway) Ping(ctx context.Context) error {
	if g.ping != nil {
		return g.ping(ctx)
	}
	return nil
}

func (g *fakeGateway) CurrentPrincipal(context.Context) (*gateway.Principal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.principal == nil {
		return nil, nil
	}
	p := *g.principal
	return &p, nil
}

func (g *fakeGateway) SubscribeAuthChanges(h gateway.AuthHandler) (gateway.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
	return fakeSubscription{gw: g}, nil
}

func (g *fakeGateway) SignInWithPassword(ctx context.Context, email, password string) (*gateway.Principal, error) {
	if g.signIn != nil {
		return g.signIn(ctx, email, password)
	}
	return nil, &gateway.Error{Op: "sign in", Err: gateway.ErrInvalidCredentials}
}

func (g *fakeGateway) ResendConfirmation(ctx context.Context, email string) error {
	g.mu.Lock()
	g.resent = append(g.resent, email)
	g.mu.Unlock()
	if g.resend != nil {
		return g.resend(ctx, email)
	}
	return nil
}

func (g *fakeGateway) Register(ctx context.Context, email, password string, meta gateway.Metadata) (*gateway.Registration, error) {
	if g.register != nil {
		return g.register(ctx, email, password, meta)
	}
	return nil, errors.New("register not configured")
}

func (g *fakeGateway) SignOut(ctx context.Context) error {
	if g.signOut != nil {
		return g.signOut(ctx)
	}
	g.mu.Lock()
	g.principal = nil
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) FetchProfile(ctx context.Context, id string) (*gateway.Profile, error) {
	if g.fetchProfile != nil {
		return g.fetchProfile(ctx, id)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.profiles[id]
	if !ok {
		return nil, &gateway.Error{Op: "fetch profile", Err: gateway.ErrNotFound}
	}
	return &p, nil
}

func (g *fakeGateway) InsertProfile(_ context.Context, p gateway.Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[p.ID] = p
	return nil
}

func (g *fakeGateway) UpdateProfile(ctx context.Context, id string, u gateway.ProfileUpdate) error {
	g.mu.Lock()
	g.updates = append(g.updates, u)
	g.mu.Unlock()
	if g.updateProfile != nil {
		return g.updateProfile(ctx, id, u)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.profiles[id]
	if !ok {
		return &gateway.Error{Op: "update profile", Err: gateway.ErrNotFound}
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.AvatarURL != nil {
		p.AvatarURL = u.AvatarURL
	}
	if u.Organization != nil {
		p.Organization = u.Organization
	}
	g.profiles[id] = p
	return nil
}

func (g *fakeGateway) UploadObject(_ context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.objects[path]; exists {
		return &gateway.Error{Op: "upload object", Err: gateway.ErrObjectExists}
	}
	g.objects[path] = data
	return nil
}

func (g *fakeGateway) PublicURL(path string) string {
	return "https://desk.example.com/storage/" + path
}

func (g *fakeGateway) objectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.objects)
}
