// Package access implements the admin-controlled gate that decides whether
// this device may run the refreshable side effects.
package access

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/kvstore"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/models"
)

const (
	identityKey    = "device_identity"
	identityPrefix = "device-"
)

// Gate errors
var (
	ErrRejected           = errors.New("passphrase rejected")
	ErrNotAuthorized      = errors.New("admin session required")
	ErrPassphraseTooShort = fmt.Errorf("passphrase must be at least %d characters", config.MinPassphraseLength)
	ErrEmptyIdentity      = errors.New("identity must not be empty")
)

// AddResult reports the outcome of AddToAllowList
type AddResult string

// AddToAllowList outcomes
const (
	AddAdded          AddResult = "added"
	AddAlreadyPresent AddResult = "already_present"
)

// SettingsStore persists the singleton access settings row
type SettingsStore interface {
	Get(ctx context.Context, defaults *models.AccessSettings) (*models.AccessSettings, error)
	Save(ctx context.Context, settings *models.AccessSettings) error
}

// CounterStore persists monotonic aggregate counters
type CounterStore interface {
	Increment(ctx context.Context, name string, delta int64) (int64, error)
	All(ctx context.Context) (map[string]int64, error)
}

// Session is an admin capability returned by AuthenticateAdmin. It stays
// valid until Logout or ResetAll.
type Session struct {
	Token     string    `json:"session"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the admin export of settings and counters
type Snapshot struct {
	GlobalEnabled bool             `json:"global_enabled"`
	AllowList     []string         `json:"allow_list"`
	Counters      map[string]int64 `json:"counters"`
	ExportedAt    time.Time        `json:"exported_at"`
}

// Gate guards the allow-list, the global flag and the admin passphrase.
// Authorization is read from the settings store on every call.
type Gate struct {
	settings          SettingsStore
	counters          CounterStore
	kv                kvstore.Store
	defaultPassphrase string
	now               func() time.Time

	mu       sync.Mutex
	sessions map[string]Session
	identity string
}

// NewGate creates a gate. kv holds the device identity and may be nil, in
// which case the identity lives only as long as the process.
func NewGate(settings SettingsStore, counters CounterStore, kv kvstore.Store, cfg config.AccessConfig) *Gate {
	return &Gate{
		settings:          settings,
		counters:          counters,
		kv:                kv,
		defaultPassphrase: cfg.DefaultPassphrase,
		now:               time.Now,
		sessions:          make(map[string]Session),
	}
}

func (g *Gate) defaults() *models.AccessSettings {
	return models.DefaultAccessSettings(g.defaultPassphrase)
}

func (g *Gate) load(ctx context.Context) (*models.AccessSettings, error) {
	s, err := g.settings.Get(ctx, g.defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to load access settings: %w", err)
	}
	return s, nil
}

// IsAuthorized reports globalEnabled && identity ∈ allowList. Storage errors
// fail closed.
func (g *Gate) IsAuthorized(ctx context.Context, identity string) bool {
	s, err := g.load(ctx)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Authorization check failed")
		return false
	}
	return s.GlobalEnabled && s.Allows(identity)
}

// AuthenticateAdmin returns a new session when passphrase matches
func (g *Gate) AuthenticateAdmin(ctx context.Context, passphrase string) (Session, error) {
	s, err := g.load(ctx)
	if err != nil {
		return Session{}, err
	}
	if subtle.ConstantTimeCompare([]byte(passphrase), []byte(s.Passphrase)) != 1 {
		logger.Log.Warn().Msg("Admin authentication rejected")
		return Session{}, ErrRejected
	}

	session := Session{Token: uuid.New().String(), CreatedAt: g.now().UTC()}
	g.mu.Lock()
	g.sessions[session.Token] = session
	g.mu.Unlock()

	logger.Log.Info().Msg("Admin session opened")
	return session, nil
}

// Logout ends session. Ending an unknown session is a no-op.
func (g *Gate) Logout(session Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, session.Token)
}

// ValidSession reports whether session is live
func (g *Gate) ValidSession(session Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.sessions[session.Token]
	return ok
}

// mutate loads the settings, applies fn and saves the result, all while
// holding the gate lock so concurrent admin writes do not interleave.
func (g *Gate) mutate(ctx context.Context, session Session, fn func(*models.AccessSettings) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.sessions[session.Token]; !ok {
		return ErrNotAuthorized
	}

	s, err := g.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	if err := g.settings.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to save access settings: %w", err)
	}
	return nil
}

// SetGlobalEnabled toggles the global flag
func (g *Gate) SetGlobalEnabled(ctx context.Context, session Session, enabled bool) error {
	err := g.mutate(ctx, session, func(s *models.AccessSettings) error {
		s.GlobalEnabled = enabled
		return nil
	})
	if err == nil {
		logger.Log.Info().Bool("enabled", enabled).Msg("Access gate toggled")
	}
	return err
}

// AddToAllowList adds identity. A duplicate is reported as AddAlreadyPresent.
func (g *Gate) AddToAllowList(ctx context.Context, session Session, identity string) (AddResult, error) {
	if identity == "" {
		return "", ErrEmptyIdentity
	}

	result := AddAdded
	err := g.mutate(ctx, session, func(s *models.AccessSettings) error {
		if s.Allows(identity) {
			result = AddAlreadyPresent
			return nil
		}
		s.AllowList = append(s.AllowList, identity)
		return nil
	})
	if err != nil {
		return "", err
	}
	logger.Log.Info().Str("identity", identity).Str("result", string(result)).Msg("Allow-list add")
	return result, nil
}

// RemoveFromAllowList removes identity. Removing an absent identity is a no-op.
func (g *Gate) RemoveFromAllowList(ctx context.Context, session Session, identity string) error {
	return g.mutate(ctx, session, func(s *models.AccessSettings) error {
		kept := s.AllowList[:0]
		for _, id := range s.AllowList {
			if id != identity {
				kept = append(kept, id)
			}
		}
		s.AllowList = kept
		return nil
	})
}

// SetPassphrase replaces the admin passphrase. Existing sessions stay valid.
func (g *Gate) SetPassphrase(ctx context.Context, session Session, passphrase string) error {
	if len(passphrase) < config.MinPassphraseLength {
		if !g.ValidSession(session) {
			return ErrNotAuthorized
		}
		return ErrPassphraseTooShort
	}
	return g.mutate(ctx, session, func(s *models.AccessSettings) error {
		s.Passphrase = passphrase
		return nil
	})
}

// ExportSnapshot returns the settings and counters without the passphrase
func (g *Gate) ExportSnapshot(ctx context.Context, session Session) (Snapshot, error) {
	if !g.ValidSession(session) {
		return Snapshot{}, ErrNotAuthorized
	}

	s, err := g.load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	counters, err := g.counters.All(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load counters: %w", err)
	}

	return Snapshot{
		GlobalEnabled: s.GlobalEnabled,
		AllowList:     append([]string{}, s.AllowList...),
		Counters:      counters,
		ExportedAt:    g.now().UTC(),
	}, nil
}

// ResetAll restores the default passphrase, empties the allow-list and
// re-enables the global flag. Every session, including the caller's, ends.
func (g *Gate) ResetAll(ctx context.Context, session Session) error {
	err := g.mutate(ctx, session, func(s *models.AccessSettings) error {
		d := g.defaults()
		s.GlobalEnabled = d.GlobalEnabled
		s.AllowList = d.AllowList
		s.Passphrase = d.Passphrase
		return nil
	})
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.sessions = make(map[string]Session)
	g.mu.Unlock()

	logger.Log.Warn().Msg("Access settings reset to defaults")
	return nil
}

// IncrementCounter bumps a named aggregate counter
func (g *Gate) IncrementCounter(ctx context.Context, name string) (int64, error) {
	return g.counters.Increment(ctx, name, 1)
}

// Identity returns this device's identity, generating and persisting it on
// first use
func (g *Gate) Identity(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.identity != "" {
		return g.identity
	}

	if g.kv != nil {
		if data, err := g.kv.Get(ctx, identityKey); err == nil && len(data) > 0 {
			g.identity = string(data)
			return g.identity
		} else if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			logger.Log.Warn().Err(err).Msg("Failed to read device identity")
		}
	}

	g.identity = identityPrefix + uuid.New().String()
	if g.kv != nil {
		if err := g.kv.Put(ctx, identityKey, []byte(g.identity)); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to persist device identity")
		}
	}
	logger.Log.Info().Str("identity", g.identity).Msg("Generated device identity")
	return g.identity
}
