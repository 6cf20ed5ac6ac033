package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"place-registry/pkg/circuit"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type fixedBreaker circuit.State

func (f fixedBreaker) State() circuit.State { return circuit.State(f) }

func TestManagerStatus(t *testing.T) {
	tests := []struct {
		name    string
		dbErr   error
		breaker circuit.State
		want    Status
		code    int
	}{
		{"all healthy", nil, circuit.Closed, StatusHealthy, http.StatusOK},
		{"breaker open", nil, circuit.Open, StatusDegraded, http.StatusOK},
		{"db down", errors.New("refused"), circuit.Closed, StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(time.Second, nil)
			m.Register(NewDatabaseChecker(pinger{tt.dbErr}))
			m.Register(NewBreakerChecker("geocoder", fixedBreaker(tt.breaker)))

			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.code {
				t.Fatalf("status code %d, want %d", rec.Code, tt.code)
			}
			var rep Report
			if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if rep.Status != tt.want || len(rep.Components) != 2 {
				t.Fatalf("unexpected report: %+v", rep)
			}
		})
	}
}
