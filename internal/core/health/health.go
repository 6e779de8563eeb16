// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Check is one readiness probe. A failing Required check makes the instance
// not ready; other checks only mark it degraded.
type Check struct {
	Name     string
	Required bool
	Probe    func(ctx context.Context) error
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Readiness runs every check concurrently, each bounded by timeout.
func Readiness(timeout time.Duration, checks ...Check) http.HandlerFunc {
	if timeout <= 0 {
		timeout = time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		errs := make([]error, len(checks))
		var wg sync.WaitGroup
		for i, c := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = c.Probe(ctx)
			}()
		}
		wg.Wait()

		out := report{Status: "ready", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for i, c := range checks {
			if errs[i] == nil {
				out.Checks[c.Name] = "ok"
				continue
			}
			out.Checks[c.Name] = errs[i].Error()
			switch {
			case c.Required:
				out.Status = "not_ready"
				code = http.StatusServiceUnavailable
			case out.Status == "ready":
				out.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(out)
	}
}
