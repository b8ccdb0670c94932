package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/logger"
)

const defaultHistoryLimit = 20

// StepView is one step of a run as returned by the API.
type StepView struct {
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	Counters   domain.Counters `json:"counters"`
	Error      string          `json:"error,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunView is a run checkpoint as returned by the API.
type RunView struct {
	RunID     string     `json:"run_id"`
	CityID    string     `json:"city_id"`
	Mode      string     `json:"mode"`
	Status    string     `json:"status"`
	Steps     []StepView `json:"steps"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ParityView is a parity report as returned by the API.
type ParityView struct {
	CityID           string   `json:"city_id"`
	InParity         bool     `json:"in_parity"`
	StoreCount       int      `json:"store_count"`
	IndexCount       int      `json:"index_count"`
	MissingFromIndex []string `json:"missing_from_index"`
	OrphanedInIndex  []string `json:"orphaned_in_index"`
}

// SeedAccepted is returned when a seed run has been started.
type SeedAccepted struct {
	CityID string `json:"city_id"`
	Mode   string `json:"mode"`
}

// SummaryView is a run summary as returned by synchronous seed requests.
type SummaryView struct {
	RunID         string          `json:"run_id"`
	CityID        string          `json:"city_id"`
	Mode          string          `json:"mode"`
	Status        string          `json:"status"`
	Totals        domain.Counters `json:"totals"`
	Alerts        int             `json:"alerts"`
	DriftWarnings []string        `json:"drift_warnings,omitempty"`
	Trustworthy   bool            `json:"trustworthy"`
	Error         string          `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	cp, err := s.seeder.Status(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runView(cp))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		limit = n
	}
	cps, err := s.seeder.History(r.Context(), chi.URLParam(r, "city"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]RunView, len(cps))
	for i := range cps {
		views[i] = runView(&cps[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getParity(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeError(w, domain.ErrVectorIndexUnavailable)
		return
	}
	report, err := s.publisher.CheckParity(r.Context(), chi.URLParam(r, "city"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ParityView{
		CityID:           report.CityID,
		InParity:         report.InParity(),
		StoreCount:       report.StoreCount,
		IndexCount:       report.IndexCount,
		MissingFromIndex: nonNil(report.MissingFromIndex),
		OrphanedInIndex:  nonNil(report.OrphanedInIndex),
	})
}

// postSeed starts a run. By default the run continues in the background and
// the request returns 202; wait=true blocks and returns the run summary.
func (s *Server) postSeed(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	mode := domain.SeedResume
	if raw := r.URL.Query().Get("mode"); raw != "" {
		parsed, err := domain.ParseSeedMode(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		mode = parsed
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		summary, err := s.seeder.SeedCity(r.Context(), city, mode)
		if summary == nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if err != nil {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, summaryView(summary))
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if _, err := s.seeder.SeedCity(s.runCtx, city, mode); err != nil {
			logger.Error(err, "seed %s (%s) started over http", city, mode)
		}
	}()
	writeJSON(w, http.StatusAccepted, SeedAccepted{CityID: city, Mode: string(mode)})
}

func runView(cp *domain.PipelineCheckpoint) RunView {
	steps := make([]StepView, len(cp.Steps))
	for i, st := range cp.Steps {
		steps[i] = StepView{
			Name:       string(st.Name),
			Status:     string(st.Status),
			Counters:   st.Counters,
			Error:      st.Error,
			StartedAt:  optionalTime(st.StartedAt),
			FinishedAt: optionalTime(st.FinishedAt),
		}
	}
	return RunView{
		RunID:     cp.RunID,
		CityID:    cp.CityID,
		Mode:      string(cp.Mode),
		Status:    string(cp.Status),
		Steps:     steps,
		CreatedAt: cp.CreatedAt,
		UpdatedAt: cp.UpdatedAt,
	}
}

func summaryView(s *domain.RunSummary) SummaryView {
	return SummaryView{
		RunID:         s.RunID,
		CityID:        s.CityID,
		Mode:          string(s.Mode),
		Status:        string(s.Status),
		Totals:        s.Totals,
		Alerts:        len(s.Alerts),
		DriftWarnings: s.DriftWarnings,
		Trustworthy:   s.Trustworthy(),
		Error:         s.Error,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrVectorIndexUnavailable), errors.Is(err, domain.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(err, "ops request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response: %v", err)
	}
}
