package server

import "net/http"

// healthReport is the GET /health response schema.
type healthReport struct {
	Status string            `json:"status"` // healthy | degraded | unhealthy
	DB     string            `json:"db"`
	Cache  string            `json:"cache,omitempty"`
	Tools  map[string]bool   `json:"tools"`
	Detail map[string]string `json:"detail,omitempty"`
}

// handleHealth reports overall health: a failing database is unhealthy
// (503); a failing cache or no live tool degrades the report but keeps
// serving (200).
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := healthReport{Status: "healthy", DB: "ok", Tools: map[string]bool{}}
	detail := map[string]string{}

	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			report.Status = "unhealthy"
			report.DB = "down"
			detail["db"] = err.Error()
		}
	}

	if s.deps.Cache != nil {
		report.Cache = "ok"
		if err := s.deps.Cache.Ping(r.Context()); err != nil {
			report.Cache = "down"
			detail["cache"] = err.Error()
			if report.Status == "healthy" {
				report.Status = "degraded"
			}
		}
	}

	anyLive := false
	for _, t := range s.deps.Orchestrator.Tools(r.Context()) {
		report.Tools[t.Name] = t.Available
		anyLive = anyLive || t.Available
	}
	if !anyLive && report.Status == "healthy" {
		report.Status = "degraded"
		detail["tools"] = "no tool available"
	}

	if len(detail) > 0 {
		report.Detail = detail
	}
	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Pre-allocated bodies for the probe endpoints.
var (
	okBody       = []byte("ok")
	notReadyBody = []byte("not ready")
	plainCT      = []string{"text/plain"}
)

// handleReady is the readiness probe: 200 iff the database answers.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			w.Header()["Content-Type"] = plainCT
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write(notReadyBody)
			return
		}
	}
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

// handleLive is the liveness probe: 200 unconditionally.
func (s *server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}
