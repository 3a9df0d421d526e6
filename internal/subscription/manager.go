package subscription

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/podbrief/podbrief/internal/notify"
)

// Manager hands out one session per user and reference-counts them so
// concurrent requests for the same user share state.
type Manager struct {
	store    Store
	biller   Biller
	profiles ProfileCache

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session *Session
	refs    int

	// ready is closed once the initial Load finished; err carries its result.
	ready chan struct{}
	err   error
}

// NewManager creates a session manager. profiles may be nil.
func NewManager(store Store, biller Biller, profiles ProfileCache) *Manager {
	return &Manager{
		store:    store,
		biller:   biller,
		profiles: profiles,
		sessions: make(map[string]*entry),
	}
}

// Acquire returns the user's session, loading it on first reference. Later
// acquirers block until that first load finishes, so nobody observes an
// unloaded session. Callers must Release when done.
func (m *Manager) Acquire(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	if ok {
		e.refs++
		m.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			m.Release(userID)
			return nil, ctx.Err()
		}
		if e.err != nil {
			m.Release(userID)
			return nil, e.err
		}
		return e.session, nil
	}

	e = &entry{
		session: NewSession(userID, m.store, m.biller, m.profiles),
		refs:    1,
		ready:   make(chan struct{}),
	}
	m.sessions[userID] = e
	m.mu.Unlock()

	e.err = e.session.Load(ctx)
	close(e.ready)
	if e.err != nil {
		m.Release(userID)
		return nil, e.err
	}

	return e.session, nil
}

// Release drops one reference; the session is evicted at zero.
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[userID]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(m.sessions, userID)
	}
}

// Watch routes change events to live sessions. Events for users without a
// session are dropped; their next Acquire loads fresh state anyway.
func (m *Manager) Watch(ctx context.Context, events <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Table != notify.TableProfiles && ev.Table != notify.TableSubscriptions {
				continue
			}

			m.mu.Lock()
			e, live := m.sessions[ev.UserID]
			m.mu.Unlock()
			if !live {
				continue
			}

			if err := e.session.reload(ctx); err != nil {
				log.Warn().Err(err).Str("user_id", ev.UserID).Msg("Failed to refresh subscription session")
			}
		}
	}
}
