package auth

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

// Session pairs an identity with its live profile. A nil Identity
// means signed out.
type Session struct {
	Identity *Identity
	Profile  *types.UserProfile
}

// Resolver turns an authenticated identity into a live session: it
// reconciles the master admin on sign-in and then follows the profile
// document, pushing an updated Session on every change.
type Resolver struct {
	store            store.Store
	masterAdminEmail string
	logger           zerolog.Logger

	mu       sync.Mutex
	sub      *store.Subscription
	done     chan struct{}
	sessions chan Session
	reload   chan struct{}
}

// NewResolver creates a resolver. masterAdminEmail may be empty, in
// which case no bootstrap reconciliation happens.
func NewResolver(st store.Store, masterAdminEmail string) *Resolver {
	return &Resolver{
		store:            st,
		masterAdminEmail: masterAdminEmail,
		logger:           log.WithComponent("auth-resolver"),
		sessions:         make(chan Session, 8),
		reload:           make(chan struct{}, 1),
	}
}

// Sessions delivers a Session on sign-in and after every profile
// change, and a zero Session on sign-out
func (r *Resolver) Sessions() <-chan Session {
	return r.sessions
}

// ReloadCh fires when the stored master admin role has drifted away
// from admin and the whole session must be rebuilt
func (r *Resolver) ReloadCh() <-chan struct{} {
	return r.reload
}

// SignIn reconciles the profile for id and starts following it. Any
// previous session is torn down first.
func (r *Resolver) SignIn(id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()

	profile, err := r.reconcile(id)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", id.ID).Msg("Failed to load profile at sign-in")
		return err
	}

	sub, err := r.store.Subscribe(store.ProfilePath(id.ID))
	if err != nil {
		return err
	}
	r.sub = sub
	r.done = make(chan struct{})

	r.deliver(Session{Identity: &id, Profile: profile})

	go r.follow(id, sub, r.done)
	return nil
}

// SignOut tears down the profile subscription and emits a signed-out
// session
func (r *Resolver) SignOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.deliver(Session{})
}

// Close releases the resolver without emitting a sign-out session
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Resolver) stopLocked() {
	if r.sub != nil {
		r.sub.Cancel()
		r.sub = nil
	}
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
}

func (r *Resolver) follow(id Identity, sub *store.Subscription, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			var profile types.UserProfile
			if snap.Value == nil {
				r.deliver(Session{Identity: &id})
				continue
			}
			if err := store.Decode(snap.Value, &profile); err != nil {
				r.logger.Error().Err(err).Str("user_id", id.ID).Msg("Failed to decode profile snapshot")
				continue
			}
			if r.isMasterAdmin(id.Email) && profile.Role != types.RoleAdmin {
				// stored role drifted away from admin, the whole
				// session has to be rebuilt from scratch
				r.logger.Warn().Str("user_id", id.ID).Str("role", string(profile.Role)).
					Msg("Master admin role drifted, requesting session reload")
				select {
				case r.reload <- struct{}{}:
				default:
				}
				continue
			}
			r.deliver(Session{Identity: &id, Profile: &profile})
		}
	}
}

func (r *Resolver) deliver(s Session) {
	select {
	case r.sessions <- s:
	default:
		r.logger.Warn().Msg("Session channel full, dropping update")
	}
}

func (r *Resolver) isMasterAdmin(email string) bool {
	return r.masterAdminEmail != "" && strings.EqualFold(email, r.masterAdminEmail)
}

// Resolve loads (and for the master admin, reconciles) the profile
// without opening a standing subscription. Stateless request paths use
// this; long-lived sessions use SignIn.
func (r *Resolver) Resolve(id Identity) (*types.UserProfile, error) {
	return r.reconcile(id)
}

// reconcile loads the profile once and, for the master admin, forces
// role admin and verified true while preserving createdAt. Safe to run
// on every sign-in.
func (r *Resolver) reconcile(id Identity) (*types.UserProfile, error) {
	raw, err := r.store.Get(store.ProfilePath(id.ID))
	if err != nil {
		return nil, err
	}

	var profile types.UserProfile
	if raw != nil {
		if err := store.Decode(raw, &profile); err != nil {
			return nil, err
		}
	}

	if !r.isMasterAdmin(id.Email) {
		if raw == nil {
			return nil, nil
		}
		return &profile, nil
	}

	needsWrite := raw == nil || profile.Role != types.RoleAdmin || !profile.Verified
	profile.Email = id.Email
	profile.Role = types.RoleAdmin
	profile.Verified = true

	if needsWrite {
		update := map[string]any{
			"email":    profile.Email,
			"role":     string(types.RoleAdmin),
			"verified": true,
		}
		if profile.CreatedAt != 0 {
			update["createdAt"] = profile.CreatedAt
		}
		if err := r.store.Update(store.ProfilePath(id.ID), update); err != nil {
			return nil, err
		}
		r.logger.Info().Str("user_id", id.ID).Msg("Bootstrapped master admin profile")
	}

	if err := r.store.Put(store.AdminMarkerPath(id.ID), true); err != nil {
		r.logger.Error().Err(err).Str("user_id", id.ID).Msg("Failed to write admin marker")
	}

	return &profile, nil
}
