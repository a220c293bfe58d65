package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole probe fan-out. Anything slower than
// this counts as down for readiness purposes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one dependency check run by the health endpoint. The payment
// API registers a probe per critical dependency: the Postgres pool, and where
// wired, the Stripe API and the reconcile queue.
type HealthProbe interface {
	// Name identifies the probe in the response body, e.g. "database".
	Name() string

	// Check reports whether the dependency is reachable. It must respect the
	// context deadline.
	Check(ctx context.Context) error
}

// componentStatus is the per-dependency entry in the health response.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the body for GET /health.
type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every registered probe concurrently under a shared
// deadline and answers 200 when all pass, 503 otherwise. Probes that have not
// reported by the deadline are marked unhealthy rather than holding up the
// response; load balancer checks need a bounded answer more than a complete
// one.
//
// The endpoint is unauthenticated and mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	type probeResult struct {
		name string
		err  error
	}

	results := make(chan probeResult, len(probes))
	for _, probe := range probes {
		go func(p HealthProbe) {
			var err error
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						err = fmt.Errorf("probe panicked: %v", rec)
					}
				}()
				err = p.Check(ctx)
			}()
			results <- probeResult{name: p.Name(), err: err}
		}(probe)
	}

	// Collect until every probe has answered or the deadline passes.
	reported := make(map[string]error, len(probes))
collect:
	for range probes {
		select {
		case res := <-results:
			reported[res.name] = res.err
		case <-ctx.Done():
			break collect
		}
	}

	components := make(map[string]componentStatus, len(probes))
	allHealthy := true
	for _, probe := range probes {
		name := probe.Name()
		err, done := reported[name]
		switch {
		case !done:
			allHealthy = false
			components[name] = componentStatus{
				Status:  "unhealthy",
				Message: "health check timed out",
			}
		case err != nil:
			allHealthy = false
			components[name] = componentStatus{
				Status:  "unhealthy",
				Message: err.Error(),
			}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Components: components}
	if allHealthy {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	JSON(w, r, http.StatusServiceUnavailable, resp)
}
