package gemini

import (
	"sync"
	"time"
)

// PlaceholderKey is handed out when the pool was configured with no
// credentials. The downstream call fails with an auth error the caller
// already knows how to surface; the pool itself never errors.
const PlaceholderKey = "missing-api-key"

// DefaultResetInterval is how long failure marks stick before the pool
// gives every credential another chance.
const DefaultResetInterval = time.Hour

type keyHealth struct {
	failed   bool
	failedAt time.Time
}

// KeyPool holds an ordered credential set and tracks per-key health. All
// methods are safe for concurrent use; dispatcher tasks share one pool.
type KeyPool struct {
	mu            sync.Mutex
	keys          []string
	health        []keyHealth
	cursor        int
	lastReset     time.Time
	resetInterval time.Duration
}

// PoolStats is a read-only snapshot for observability endpoints.
type PoolStats struct {
	Total        int `json:"total"`
	Failed       int `json:"failed"`
	CurrentIndex int `json:"current_index"`
	Available    int `json:"available"`
}

func NewKeyPool(keys []string, resetInterval time.Duration) *KeyPool {
	if resetInterval <= 0 {
		resetInterval = DefaultResetInterval
	}
	return &KeyPool{
		keys:          append([]string(nil), keys...),
		health:        make([]keyHealth, len(keys)),
		lastReset:     time.Now(),
		resetInterval: resetInterval,
	}
}

func (p *KeyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// CurrentKey returns the credential at the cursor. It never fails; an empty
// pool yields the placeholder so the eventual API error surfaces downstream.
func (p *KeyPool) CurrentKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return PlaceholderKey
	}
	return p.keys[p.cursor]
}

// KeyAt returns the credential at index i (modulo pool size).
func (p *KeyPool) KeyAt(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return PlaceholderKey
	}
	return p.keys[((i%len(p.keys))+len(p.keys))%len(p.keys)]
}

// Advance moves the cursor to the next non-failed credential, scanning
// forward circularly. If the reset window has elapsed all failure marks are
// cleared first; if every credential is failed the pool force-recovers to
// index 0. Always returns a credential.
func (p *KeyPool) Advance() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return PlaceholderKey
	}

	p.maybeResetLocked()

	if p.allFailedLocked() {
		p.clearAllLocked()
		p.cursor = 0
		return p.keys[0]
	}

	for i := 1; i <= len(p.keys); i++ {
		idx := (p.cursor + i) % len(p.keys)
		if !p.health[idx].failed {
			p.cursor = idx
			return p.keys[idx]
		}
	}

	// Unreachable: the all-failed branch above guarantees a healthy key.
	p.cursor = 0
	return p.keys[0]
}

// NextAfter scans forward from index i for the next non-failed credential,
// applying the same reset and force-recovery rules as Advance but without
// touching the shared cursor. Used by per-task fallback chains so tasks do
// not fight over one cursor.
func (p *KeyPool) NextAfter(i int) (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return 0, PlaceholderKey
	}

	p.maybeResetLocked()

	if p.allFailedLocked() {
		p.clearAllLocked()
		return 0, p.keys[0]
	}

	start := ((i % len(p.keys)) + len(p.keys)) % len(p.keys)
	for n := 1; n <= len(p.keys); n++ {
		idx := (start + n) % len(p.keys)
		if !p.health[idx].failed {
			return idx, p.keys[idx]
		}
	}

	return 0, p.keys[0]
}

// MarkCurrentFailed flags the credential at the cursor. The cursor does not
// move; the caller decides when to advance.
func (p *KeyPool) MarkCurrentFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return
	}
	p.health[p.cursor] = keyHealth{failed: true, failedAt: time.Now()}
}

// MarkFailed flags the credential at index i.
func (p *KeyPool) MarkFailed(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return
	}
	idx := ((i % len(p.keys)) + len(p.keys)) % len(p.keys)
	p.health[idx] = keyHealth{failed: true, failedAt: time.Now()}
}

func (p *KeyPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	failed := 0
	for _, h := range p.health {
		if h.failed {
			failed++
		}
	}

	return PoolStats{
		Total:        len(p.keys),
		Failed:       failed,
		CurrentIndex: p.cursor,
		Available:    len(p.keys) - failed,
	}
}

func (p *KeyPool) maybeResetLocked() {
	if time.Since(p.lastReset) >= p.resetInterval {
		p.clearAllLocked()
	}
}

func (p *KeyPool) allFailedLocked() bool {
	for _, h := range p.health {
		if !h.failed {
			return false
		}
	}
	return len(p.keys) > 0
}

func (p *KeyPool) clearAllLocked() {
	for i := range p.health {
		p.health[i] = keyHealth{}
	}
	p.lastReset = time.Now()
}
