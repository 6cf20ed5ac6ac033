package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"place-registry/pkg/logging"
	"place-registry/pkg/metrics"
)

// State represents the circuit breaker state
// Closed: normal operation; HalfOpen: probing; Open: fail fast
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config tunes a circuit breaker instance.
type Config struct {
	Name string

	OperationTimeout  time.Duration // per-call timeout
	OpenFor           time.Duration // how long to stay open before probing
	MaxConsecFailures int           // consecutive failures to open
	SlowCallThreshold time.Duration // calls slower than this are counted as slow
}

// ErrOpen indicates the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("circuit open")

type Breaker struct {
	cfg        Config
	mu         sync.Mutex
	st         State
	nextProbe  time.Time
	consecFail int
	probing    bool
	now        func() time.Time

	log *logging.ComponentLogger

	mState   *metrics.Gauge
	mFailure *metrics.Counter
	mTimeout *metrics.Counter
	mSlow    *metrics.Counter
	mLatency *metrics.Histogram
}

func New(cfg Config, log *logging.Logger, reg *metrics.Registry) *Breaker {
	if cfg.MaxConsecFailures <= 0 {
		cfg.MaxConsecFailures = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if log == nil {
		log = logging.NewNop()
	}
	if reg == nil {
		reg = metrics.Default
	}
	return &Breaker{
		cfg:      cfg,
		st:       Closed,
		now:      time.Now,
		log:      log.WithComponent("circuit"),
		mState:   reg.Gauge("cb_"+cfg.Name+"_state", "Circuit breaker state (0=closed,1=open,2=half-open)"),
		mFailure: reg.Counter("cb_"+cfg.Name+"_failure", "Failed calls through circuit"),
		mTimeout: reg.Counter("cb_"+cfg.Name+"_timeout", "Timed out calls"),
		mSlow:    reg.Counter("cb_"+cfg.Name+"_slow", "Slow calls"),
		mLatency: reg.Histogram(cfg.Name+"_latency_ms", "Latency of calls (ms)", []float64{25, 50, 100, 200, 500, 1000, 2000, 5000}),
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func (b *Breaker) setStateLocked(st State) {
	if b.st == st {
		return
	}
	b.st = st
	b.mState.Set(float64(st))
	b.log.Info("breaker state change", logging.String("name", b.cfg.Name), logging.String("state", st.String()))
}

// Do runs op under the breaker. While open it returns ErrOpen without calling op.
// Only one probe is let through in half-open state.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.st {
	case Open:
		if b.now().Before(b.nextProbe) {
			b.mu.Unlock()
			return ErrOpen
		}
		b.setStateLocked(HalfOpen)
		b.probing = true
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	start := time.Now()
	err := op(ctx)
	dur := time.Since(start)
	b.mLatency.Observe(float64(dur / time.Millisecond))
	if b.cfg.SlowCallThreshold > 0 && dur > b.cfg.SlowCallThreshold {
		b.mSlow.Inc(1)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		b.mTimeout.Inc(1)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil && countsAsFailure(err) {
		b.consecFail++
		b.mFailure.Inc(1)
		if b.st == HalfOpen || b.consecFail >= b.cfg.MaxConsecFailures {
			b.setStateLocked(Open)
			b.nextProbe = b.now().Add(b.cfg.OpenFor)
		}
		return err
	}

	b.consecFail = 0
	if b.st == HalfOpen {
		b.setStateLocked(Closed)
	}
	return err
}

// Permanent marks an error that reflects bad input rather than an unhealthy
// dependency. It is returned to the caller but does not trip the breaker.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

func countsAsFailure(err error) bool {
	var p *Permanent
	return !errors.As(err, &p)
}
