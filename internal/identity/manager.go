// Package identity owns the signed-in user's lifecycle for one browser
// client: the initial session probe, auth-state notifications, sign-in,
// sign-up, sign-out and profile changes. It is the only writer of the
// published Identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"helpdesk/internal/gateway"
	"helpdesk/internal/logger"
)

const (
	msgNoSession       = "no active session"
	msgProfileMissing  = "user profile could not be loaded"
	msgCheckInbox      = "Account created! Check your email to confirm your address."
	msgAccountCreated  = "Account created."
	msgResent          = "Email not confirmed. A new confirmation email was sent, check your inbox."
	msgResendFailedFmt = "Email not confirmed. Resending the confirmation email failed: %s"
)

type Options struct {
	// ClientID tags log entries.
	ClientID string
	// CheckReachability pings the gateway before the first probe.
	CheckReachability bool
	// ProbeTimeout bounds the bootstrap probe, zero means no bound.
	ProbeTimeout time.Duration
	Now          func() time.Time
}

type Manager struct {
	gw   gateway.Gateway
	opts Options

	// ctx lives until Close and bounds auth-change handling.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	// issued is the last ticket handed to an identity-publishing
	// operation; published is the ticket of the last applied result.
	issued    uint64
	published uint64
	sub       gateway.Subscription
	watchers  map[int]chan State
	nextWatch int
	closed    bool
}

func NewManager(gw gateway.Gateway, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		gw:       gw,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[int]chan State),
	}
}

// State returns a snapshot of the published state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Watch returns a channel that always holds the latest state. The current
// state is delivered immediately; intermediate states may be skipped.
func (m *Manager) Watch() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = ch
	ch <- m.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.watchers[id]; ok {
				delete(m.watchers, id)
				close(ch)
			}
		})
	}
}

// Close releases the auth subscription and all watchers. In-flight
// operations finish but their results are no longer delivered to watchers.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sub := m.sub
	m.sub = nil
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
	m.mu.Unlock()

	m.cancel()
	if sub != nil {
		return sub.Unsubscribe()
	}
	return nil
}

// Bootstrap performs the initial probe and leaves a standing subscription
// to auth-state changes. It resolves Status exactly once per call.
func (m *Manager) Bootstrap(ctx context.Context) Result {
	m.setProbing(true)
	defer m.setProbing(false)

	if m.opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ProbeTimeout)
		defer cancel()
	}

	ticket := m.ticket()

	if m.opts.CheckReachability {
		if err := m.gw.Ping(ctx); err != nil {
			m.log("gateway unreachable", "bootstrap", err)
			m.resolveAbsent(ticket, err.Error())
			return fail(err.Error())
		}
	}

	// subscribe before probing so a change between the two is not lost
	m.ensureSubscribed()

	principal, err := m.gw.CurrentPrincipal(ctx)
	if err != nil {
		m.log("session probe failed", "bootstrap", err)
		m.resolveAbsent(ticket, err.Error())
		return fail(err.Error())
	}
	if principal == nil {
		m.resolveAbsent(ticket, "")
		return ok()
	}

	profile, err := m.gw.FetchProfile(ctx, principal.ID)
	if err != nil {
		m.log("profile fetch failed", "bootstrap", err)
		m.resolveAbsent(ticket, "")
		return fail(msgProfileMissing)
	}

	m.resolvePresent(ticket, newIdentity(*principal, *profile))
	return ok()
}

// Retry re-runs the bootstrap probe. It backs the manual retry offered
// while the backend is unreachable.
func (m *Manager) Retry(ctx context.Context) Result {
	return m.Bootstrap(ctx)
}

func (m *Manager) ensureSubscribed() {
	m.mu.Lock()
	if m.sub != nil || m.closed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	sub, err := m.gw.SubscribeAuthChanges(m.handleAuthChange)
	if err != nil {
		m.log("auth subscription failed", "bootstrap", err)
		return
	}

	m.mu.Lock()
	if m.sub != nil || m.closed {
		m.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	m.sub = sub
	m.mu.Unlock()
}

// handleAuthChange republishes Identity from scratch for every
// notification, so redundant notifications are harmless.
func (m *Manager) handleAuthChange(event gateway.Event, principal *gateway.Principal) {
	ticket := m.ticket()

	if principal == nil {
		m.resolveAbsent(ticket, "")
		return
	}

	profile, err := m.gw.FetchProfile(m.ctx, principal.ID)
	if err != nil {
		m.log("profile fetch failed", "auth_change:"+string(event), err)
		m.resolveAbsent(ticket, "")
		return
	}

	m.resolvePresent(ticket, newIdentity(*principal, *profile))
}

func (m *Manager) SignIn(ctx context.Context, email, password string) Result {
	m.setAuthenticating(true)
	defer m.setAuthenticating(false)

	ticket := m.ticket()

	principal, err := m.gw.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, gateway.ErrEmailNotConfirmed) {
			if rerr := m.gw.ResendConfirmation(ctx, email); rerr != nil {
				m.log("confirmation resend failed", "sign_in", rerr)
				return fail(fmt.Sprintf(msgResendFailedFmt, rerr.Error()))
			}
			m.log("sign in with unconfirmed email", "sign_in", err)
			return fail(msgResent)
		}
		m.log("sign in failed", "sign_in", err)
		return fail(err.Error())
	}

	profile, err := m.gw.FetchProfile(ctx, principal.ID)
	if err != nil {
		m.log("profile fetch failed", "sign_in", err)
		m.resolveAbsent(ticket, "")
		return fail(msgProfileMissing)
	}

	m.resolvePresent(ticket, newIdentity(*principal, *profile))
	return ok()
}

func (m *Manager) SignUp(ctx context.Context, email, password, name, organization string) Result {
	m.setAuthenticating(true)
	defer m.setAuthenticating(false)

	reg, err := m.gw.Register(ctx, email, password, gateway.Metadata{
		Name:         name,
		Organization: organization,
	})
	if err != nil {
		m.log("sign up failed", "sign_up", err)
		return fail(err.Error())
	}

	if !reg.SessionActive {
		return Result{Success: true, Message: msgCheckInbox}
	}

	profile := gateway.Profile{
		ID:    reg.Principal.ID,
		Name:  name,
		Email: reg.Principal.Email,
	}
	if organization != "" {
		profile.Organization = &organization
	}
	if err := m.gw.InsertProfile(ctx, profile); err != nil {
		m.log("profile insert failed", "sign_up", err)
		return fail(err.Error())
	}

	// Register already announced the sign-in, before the profile existed.
	// The ticket is taken now so this resolution supersedes that one.
	ticket := m.ticket()

	stored, err := m.gw.FetchProfile(ctx, reg.Principal.ID)
	if err != nil {
		m.log("profile fetch failed", "sign_up", err)
		m.resolveAbsent(ticket, "")
		return fail(msgProfileMissing)
	}

	m.resolvePresent(ticket, newIdentity(reg.Principal, *stored))
	return Result{Success: true, Message: msgAccountCreated}
}

// SignOut clears Identity only once the gateway confirmed the sign-out.
func (m *Manager) SignOut(ctx context.Context) Result {
	ticket := m.ticket()

	if err := m.gw.SignOut(ctx); err != nil {
		m.log("sign out failed", "sign_out", err)
		return fail(err.Error())
	}

	m.resolveAbsent(ticket, "")
	return ok()
}

// UpdateProfile writes u to the profile of the current Identity and merges
// it locally once the write succeeded.
func (m *Manager) UpdateProfile(ctx context.Context, u gateway.ProfileUpdate) Result {
	current := m.State().Identity
	if current == nil {
		return fail(msgNoSession)
	}

	if err := m.gw.UpdateProfile(ctx, current.ID, u); err != nil {
		m.log("profile update failed", "update_profile", err)
		return fail(err.Error())
	}

	m.mu.Lock()
	// the identity may have changed hands while the write was in flight
	if m.state.Identity != nil && m.state.Identity.ID == current.ID {
		m.state.Identity = m.state.Identity.merged(u)
		m.notifyLocked()
	}
	m.mu.Unlock()

	return ok()
}

// UploadAvatar stores the image under avatars/<id>-<unix millis>.<ext> and
// links it through UpdateProfile. An uploaded object whose profile write
// fails is left behind.
func (m *Manager) UploadAvatar(ctx context.Context, filename string, r io.Reader) Result {
	current := m.State().Identity
	if current == nil {
		return fail(msgNoSession)
	}

	path := AvatarPath(current.ID, filename, m.opts.Now())
	if err := m.gw.UploadObject(ctx, path, r); err != nil {
		m.log("avatar upload failed", "upload_avatar", err)
		return fail(err.Error())
	}

	url := m.gw.PublicURL(path)
	if res := m.UpdateProfile(ctx, gateway.ProfileUpdate{AvatarURL: &url}); !res.Success {
		return res
	}
	return Result{Success: true, URL: url}
}

// AvatarPath derives the storage path of an avatar upload.
func AvatarPath(identityID, filename string, at time.Time) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("avatars/%s-%d.%s", identityID, at.UnixMilli(), ext)
}

func (m *Manager) ticket() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
	return m.issued
}

// resolvePresent and resolveAbsent apply a result unless an operation that
// started later has already published; the newest operation wins.
func (m *Manager) resolvePresent(ticket uint64, id *Identity) {
	m.resolve(ticket, StatusPresent, id, "")
}

func (m *Manager) resolveAbsent(ticket uint64, reachability string) {
	m.resolve(ticket, StatusAbsent, nil, reachability)
}

func (m *Manager) resolve(ticket uint64, status Status, id *Identity, reachability string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ticket < m.published {
		logger.Debug("discarding stale identity result", map[string]any{
			"client_id": m.opts.ClientID,
			"ticket":    ticket,
			"published": m.published,
		})
		return
	}
	m.published = ticket

	m.state.Status = status
	m.state.Identity = id
	m.state.ReachabilityError = reachability
	m.notifyLocked()
}

func (m *Manager) setProbing(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Probing = v
	m.notifyLocked()
}

func (m *Manager) setAuthenticating(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Authenticating = v
	m.notifyLocked()
}

// notifyLocked replaces whatever state a watcher has not consumed yet.
func (m *Manager) notifyLocked() {
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- m.state.clone()
	}
}

func (m *Manager) log(msg, op string, err error) {
	logger.Warn(msg, map[string]any{
		"client_id": m.opts.ClientID,
		"op":        op,
		"error":     err.Error(),
	})
}
