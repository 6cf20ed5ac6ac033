package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"place-registry/pkg/circuit"
	"place-registry/pkg/logging"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report represents the overall system health
type Report struct {
	Status     Status            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Uptime     string            `json:"uptime"`
	Components []ComponentHealth `json:"components"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

// Manager runs the registered checkers on demand.
type Manager struct {
	mu        sync.RWMutex
	checkers  []Checker
	startTime time.Time
	timeout   time.Duration
	log       *logging.ComponentLogger
}

func NewManager(timeout time.Duration, log *logging.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{startTime: time.Now(), timeout: timeout, log: log.WithComponent("health")}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// CheckAll runs every checker concurrently under the manager timeout.
func (m *Manager) CheckAll(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	results := make([]ComponentHealth, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			start := time.Now()
			res := c.Check(ctx)
			res.Name = c.Name()
			res.Duration = time.Since(start)
			results[i] = res
		}(i, c)
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	if overall != StatusHealthy {
		m.log.Warn("health check not passing", nil, logging.String("status", string(overall)))
	}
	return Report{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(m.startTime).Round(time.Second).String(),
		Components: results,
	}
}

// Handler serves the report as JSON: 200 unless some component is unhealthy.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep := m.CheckAll(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if rep.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(rep)
	})
}

// Pinger is satisfied by *database.DB and *sql.DB wrappers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker pings the database.
type DatabaseChecker struct{ db Pinger }

func NewDatabaseChecker(db Pinger) *DatabaseChecker { return &DatabaseChecker{db: db} }

func (d *DatabaseChecker) Name() string { return "database" }

func (d *DatabaseChecker) Check(ctx context.Context) ComponentHealth {
	if err := d.db.Ping(ctx); err != nil {
		return ComponentHealth{Status: StatusUnhealthy, Message: "database ping failed", Error: err.Error()}
	}
	return ComponentHealth{Status: StatusHealthy}
}

// BreakerChecker reports a circuit breaker's state. An open breaker degrades
// the service without making it unhealthy.
type BreakerChecker struct {
	name string
	b    interface{ State() circuit.State }
}

func NewBreakerChecker(name string, b interface{ State() circuit.State }) *BreakerChecker {
	return &BreakerChecker{name: name, b: b}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) ComponentHealth {
	st := c.b.State()
	if st == circuit.Closed {
		return ComponentHealth{Status: StatusHealthy, Message: st.String()}
	}
	return ComponentHealth{Status: StatusDegraded, Message: "circuit " + st.String()}
}
