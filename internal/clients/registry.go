// Package clients gives every browser its own gateway handle, session
// manager and route guard, keyed by a signed client cookie.
package clients

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"helpdesk/internal/gateway"
	"helpdesk/internal/guard"
	"helpdesk/internal/identity"
	"helpdesk/internal/logger"
	"helpdesk/internal/session"

	"github.com/gorilla/securecookie"
)

const cookieLifetime = 365 * 24 * time.Hour

// Client is the per-browser bundle.
type Client struct {
	ID      string
	Manager *identity.Manager
	Guard   *guard.Guard

	lastSeen time.Time
}

type Options struct {
	// Codec signs the client cookie; see NewCodec.
	Codec *securecookie.SecureCookie
	// Secure marks the client cookie Secure; required for __Host- cookies
	// outside localhost.
	Secure bool

	IdleTTL          time.Duration
	ProbeTimeout     time.Duration
	GuardWaitTimeout time.Duration
	// CheckReachability pings the gateway before each bootstrap probe.
	CheckReachability bool

	Now func() time.Time
}

// GatewayFactory returns the gateway handle for one client.
type GatewayFactory func(clientID string) gateway.Gateway

type Registry struct {
	gateways GatewayFactory
	cookie   session.ClientCookie
	opts     Options

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

func New(gateways GatewayFactory, opts Options) (*Registry, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}

	codec := opts.Codec
	if codec == nil {
		var err error
		if codec, err = NewCodec(nil, nil); err != nil {
			return nil, err
		}
	}

	return &Registry{
		gateways: gateways,
		cookie:   session.ClientCookie{Codec: codec, Secure: opts.Secure},
		opts:     opts,
		clients:  make(map[string]*Client),
	}, nil
}

var ErrClosed = errors.New("clients: registry closed")

// Resolve returns the client identified by the request cookie, issuing a
// new client and cookie when the cookie is missing or invalid.
func (r *Registry) Resolve(w http.ResponseWriter, req *http.Request) (*Client, error) {
	id, err := r.cookie.Read(req)
	if err == nil {
		return r.get(id)
	}
	if !errors.Is(err, http.ErrNoCookie) {
		logger.Debug("rejecting client cookie", map[string]any{
			"error": err.Error(),
		})
	}

	id, err = session.GenerateID()
	if err != nil {
		return nil, err
	}
	if err := r.cookie.Write(w, id, r.opts.Now().Add(cookieLifetime)); err != nil {
		return nil, err
	}

	return r.get(id)
}

// get returns the live client for id, creating and bootstrapping it when
// needed.
func (r *Registry) get(id string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	now := r.opts.Now()
	if c, ok := r.clients[id]; ok {
		c.lastSeen = now
		return c, nil
	}

	m := identity.NewManager(r.gateways(id), identity.Options{
		ClientID:          id,
		CheckReachability: r.opts.CheckReachability,
		ProbeTimeout:      r.opts.ProbeTimeout,
		Now:               r.opts.Now,
	})
	c := &Client{
		ID:       id,
		Manager:  m,
		Guard:    guard.New(m, r.opts.GuardWaitTimeout),
		lastSeen: now,
	}
	r.clients[id] = c

	go m.Bootstrap(context.Background())

	logger.Debug("client attached", map[string]any{
		"client_id": id,
	})
	return c, nil
}

// Len reports the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep releases clients idle for longer than IdleTTL and returns how many
// were released.
func (r *Registry) Sweep() int {
	cutoff := r.opts.Now().Add(-r.opts.IdleTTL)

	r.mu.Lock()
	var idle []*Client
	for id, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			idle = append(idle, c)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		release(c)
	}
	return len(idle)
}

// Run sweeps idle clients periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.opts.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Info("released idle clients", map[string]any{
					"count": n,
				})
			}
		}
	}
}

// Close releases every client. Resolve fails afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	all := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		all = append(all, c)
		delete(r.clients, id)
	}
	r.mu.Unlock()

	for _, c := range all {
		release(c)
	}
	return nil
}

func release(c *Client) {
	c.Guard.Close()
	if err := c.Manager.Close(); err != nil {
		logger.Warn("failed to release auth subscription", map[string]any{
			"client_id": c.ID,
			"error":     err.Error(),
		})
	}
}
