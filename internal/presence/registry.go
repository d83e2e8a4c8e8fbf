// Package presence tracks which live connection currently represents each
// online user. It is process-local and starts empty on every boot.
package presence

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
)

const mirrorStripes = 64

// Handle is a live connection as seen by the registry. Handles are compared by
// identity, so implementations should be pointer types.
type Handle interface {
	GetUserID() string
}

// Mirror receives best-effort online/offline notifications, e.g. a Redis set
// other readers can query.
type Mirror interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

// Registry maps a user ID to its single active connection. The last
// registration wins; Remove is a compare-and-delete so a stale disconnect
// never evicts a newer connection for the same user.
//
// Mirror writes for one user are serialized and always publish the state the
// registry holds at that moment, so the mirror converges on the registry even
// when writes from different connections race.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Handle
	mirror Mirror
	logger *slog.Logger

	mirrorMu [mirrorStripes]sync.Mutex
}

func NewRegistry(mirror Mirror, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]Handle),
		mirror: mirror,
		logger: logger.With("component", "presence"),
	}
}

// SetOnline registers h for userID and returns the handle it displaced, if any.
// h.GetUserID() must equal userID.
func (r *Registry) SetOnline(ctx context.Context, userID string, h Handle) Handle {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = h
	r.mu.Unlock()

	if prev != nil && prev != h {
		r.logger.Debug("presence handle replaced", "user_id", userID)
	}
	r.syncMirror(ctx, userID)
	if prev == h {
		return nil
	}
	return prev
}

// Get returns the live connection for userID.
func (r *Registry) Get(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conns[userID]
	return h, ok
}

// Remove deletes the mapping for h's user only if h is still the registered
// handle. It reports whether a mapping was removed.
func (r *Registry) Remove(ctx context.Context, h Handle) bool {
	userID := h.GetUserID()

	r.mu.Lock()
	current, ok := r.conns[userID]
	removed := ok && current == h
	if removed {
		delete(r.conns, userID)
	}
	r.mu.Unlock()

	if !removed {
		if ok {
			r.logger.Debug("stale disconnect ignored", "user_id", userID)
		}
		return false
	}
	r.syncMirror(ctx, userID)
	return true
}

// syncMirror writes userID's current registry state to the mirror. The state
// is read under the user's stripe lock, so the last write to land is always
// the latest state.
func (r *Registry) syncMirror(ctx context.Context, userID string) {
	if r.mirror == nil {
		return
	}
	lock := r.stripe(userID)
	lock.Lock()
	defer lock.Unlock()

	var err error
	if r.IsOnline(userID) {
		err = r.mirror.SetUserOnline(ctx, userID)
	} else {
		err = r.mirror.SetUserOffline(ctx, userID)
	}
	if err != nil {
		r.logger.Warn("presence mirror update failed", "user_id", userID, "err", err)
	}
}

func (r *Registry) stripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &r.mirrorMu[h.Sum32()%mirrorStripes]
}

// IsOnline reports whether userID has a live connection in this process.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Get(userID)
	return ok
}

// Count is the number of users currently online.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
