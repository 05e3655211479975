package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/infra/rpc/provider"
	"github.com/vietddude/deepwiki/internal/lifecycle"
	"github.com/vietddude/deepwiki/internal/tools"
)

const maxRequestBody = 1 << 20

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var in tools.QueryInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&in); err != nil {
		writeResult(w, tools.Result{Error: apierr.Validation("invalid request body: %v", err)})
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamQuery(w, r, in)
		return
	}
	writeResult(w, s.tools.Query(r.Context(), in, nil))
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	mermaid, _ := strconv.ParseBool(r.URL.Query().Get("mermaid"))
	writeResult(w, s.tools.GetResult(r.Context(), chi.URLParam(r, "id"), mermaid))
}

func (s *Server) handleSearchRepos(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.tools.SearchRepos(r.Context(), r.URL.Query().Get("search")))
}

func (s *Server) handleRepoStatus(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.tools.RepoStatus(r.Context(), repoParam(r)))
}

func (s *Server) handleWarmRepo(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.tools.WarmRepo(r.Context(), repoParam(r)))
}

func repoParam(r *http.Request) string {
	return chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := healthStatus(s.health.Health())
	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	h := s.health.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   healthStatus(h),
		"provider": h,
		"gate":     s.health.GateStats(),
	})
}

// healthStatus aggregates provider health; worst case wins.
func healthStatus(h provider.HealthStatus) string {
	if !h.Available {
		return StatusUnhealthy
	}
	if h.MonitorStats != nil && h.MonitorStats.Status != provider.StatusHealthy {
		return StatusDegraded
	}
	return StatusHealthy
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindRateLimit:
		return http.StatusTooManyRequests
	case apierr.KindTimeout:
		return http.StatusGatewayTimeout
	case apierr.KindServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, res tools.Result) {
	if res.Error != nil {
		writeJSON(w, statusFor(res.Error.Kind), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) streamQuery(w http.ResponseWriter, r *http.Request, in tools.QueryInput) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeResult(w, tools.Result{Error: apierr.New(apierr.KindUnknown, "streaming not supported").AsTerminal()})
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	progress := make(chan lifecycle.Progress, 16)
	done := make(chan tools.Result, 1)
	go func() {
		done <- s.tools.Query(r.Context(), in, progress)
	}()

	for {
		select {
		case p := <-progress:
			sseWrite(w, "progress", p)
			flusher.Flush()
		case res := <-done:
			event := "result"
			if res.Error != nil {
				event = "error"
			}
			sseWrite(w, event, res)
			flusher.Flush()
			return
		case <-r.Context().Done():
			s.log.Debug("Query stream closed by client")
			return
		}
	}
}
