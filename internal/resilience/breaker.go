package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a per-source circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal state, calls flow through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen allows a single probe call to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrSourceSuspended is returned by Allow while a source's breaker is open.
var ErrSourceSuspended = eris.New("resilience: source suspended after repeated failures")

// BreakerConfig controls when a source breaker trips and recovers.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens. Default: 5.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a probe.
	// Default: 30s.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the defaults used for enrichment sources.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker tracks consecutive failures for one source. Callers pair Allow
// before an attempt with Record after it.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a closed breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, nowFunc: time.Now}
}

// Allow reports whether a call may proceed. While open it returns
// ErrSourceSuspended until the cooldown has elapsed, at which point one probe
// call is admitted in half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.nowFunc().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrSourceSuspended
		}
		b.state = BreakerHalfOpen
	}
	return nil
}

// Record feeds the outcome of an attempt back into the breaker. A success
// closes it and clears the failure count; a failure in half-open reopens it
// immediately.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.nowFunc()
	}
}

// State returns the current state, promoting open to half-open once the
// cooldown has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.nowFunc().Sub(b.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// BreakerSet manages one breaker per enrichment source.
type BreakerSet struct {
	cfg BreakerConfig

	mu     sync.Mutex
	byName map[string]*Breaker
}

// NewBreakerSet creates an empty set; breakers are created on first use.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, byName: make(map[string]*Breaker)}
}

// For returns the breaker for the named source, creating it if needed.
func (s *BreakerSet) For(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byName[name]
	if !ok {
		b = NewBreaker(s.cfg)
		s.byName[name] = b
		zap.L().Debug("created source breaker", zap.String("source", name))
	}
	return b
}

// States snapshots all breakers for status reporting.
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BreakerState, len(s.byName))
	for name, b := range s.byName {
		out[name] = b.State()
	}
	return out
}
