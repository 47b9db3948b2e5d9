package connectutil

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/models"
	"golang.org/x/time/rate"
)

// LimitConfig configures the per-occupant token bucket
type LimitConfig struct {
	RPS   float64       `yaml:"rps"`
	Burst int           `yaml:"burst"`
	Idle  time.Duration `yaml:"idle"`
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per occupant and forgets idle ones.
type Limiter struct {
	mu      sync.Mutex
	cfg     LimitConfig
	clock   clockwork.Clock
	buckets map[models.OccupantID]*bucket
}

func NewLimiter(cfg LimitConfig, clock clockwork.Clock) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Idle <= 0 {
		cfg.Idle = time.Hour
	}
	return &Limiter{
		cfg:     cfg,
		clock:   clock,
		buckets: make(map[models.OccupantID]*bucket),
	}
}

// Allow takes one token from occupant's bucket.
func (l *Limiter) Allow(occupant models.OccupantID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, ok := l.buckets[occupant]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.buckets[occupant] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the configured period and
// returns how many were dropped.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	n := 0
	for occ, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.Idle {
			delete(l.buckets, occ)
			n++
		}
	}
	return n
}

// RunSweeper sweeps on every interval until stop is closed.
func (l *Limiter) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			l.Sweep()
		case <-stop:
			return
		}
	}
}
