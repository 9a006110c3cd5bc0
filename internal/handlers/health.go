package handlers

import (
	"net/http"
	"time"

	domain "github.com/xsnapster/api/internal/domain"
	"github.com/xsnapster/api/internal/services"
)

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises the health handlers before construction.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the system service consulted by Readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets the build metadata reported by Healthz.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the clock used for uptime calculation.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.clock = clock
	}
}

// NewHealthHandlers constructs handlers for /healthz and /readyz.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock().UTC()
	}
	return h
}

// Healthz reports process liveness without touching any dependency.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz reports dependency readiness via the system service. Without a
// system service it degrades to a liveness answer.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status":  domain.HealthStatusError,
			"details": []string{err.Error()},
		})
		return
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}

	checks := make(map[string]healthCheckPayload, len(report.Checks))
	details := make([]string, 0)
	for name, check := range report.Checks {
		checks[name] = healthCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Error != "" {
			details = append(details, name+": "+check.Error)
		}
	}

	writeJSONResponse(w, status, healthReportPayload{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Uptime:      report.Uptime.String(),
		GeneratedAt: formatTime(report.GeneratedAt),
		Checks:      checks,
		Details:     details,
	})
}

type healthReportPayload struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	CommitSHA   string                        `json:"commitSha,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime,omitempty"`
	GeneratedAt string                        `json:"generated_at,omitempty"`
	Checks      map[string]healthCheckPayload `json:"checks"`
	Details     []string                      `json:"details"`
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}
