package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
)

type recordOutcomeRequest struct {
	IsWin      *bool           `json:"is_win"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

type resultRequest struct {
	IsWin *bool `json:"is_win"`
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

type learnResponse struct {
	Insufficient bool                   `json:"insufficient"`
	Windows      int                    `json:"windows"`
	Ranked       []models.RankedPattern `json:"ranked"`
	Top          []models.RankedPattern `json:"top"`
}

type suggestResponse struct {
	CurrentSuggestion *models.Suggestion  `json:"current_suggestion"`
	History           []models.Suggestion `json:"history"`
}

type resultResponse struct {
	Cycle  models.BankrollCycle `json:"cycle"`
	Report bankroll.Report      `json:"report"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/accounts/{accountID}/outcomes
func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req recordOutcomeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.IsWin == nil {
		s.writeError(w, fmt.Errorf("%w: is_win is required", models.ErrInvalidInput))
		return
	}

	o, err := s.svc.RecordOutcome(r.Context(), accountID(r), *req.IsWin, req.Multiplier)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, o)
}

// GET /api/accounts/{accountID}/outcomes
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.History(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"outcomes": history})
}

// DELETE /api/accounts/{accountID}/outcomes?action=undoLast|clearAll
func (s *Server) handleDeleteOutcomes(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case "undoLast":
		o, err := s.svc.UndoLastOutcome(r.Context(), accountID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"removed": o})
	case "clearAll":
		n, err := s.svc.ClearHistory(r.Context(), accountID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"removed_count": n})
	default:
		s.writeError(w, fmt.Errorf("%w: action must be undoLast or clearAll, got %q", models.ErrInvalidInput, action))
	}
}

// POST /api/accounts/{accountID}/patterns/learn
func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Learn(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, learnResponse{
		Insufficient: res.Insufficient,
		Windows:      res.Windows,
		Ranked:       res.Ranked,
		Top:          res.Top,
	})
}

// GET /api/accounts/{accountID}/patterns
func (s *Server) handleIdentifiedPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.svc.IdentifiedPatterns(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"patterns": patterns})
}

// POST /api/accounts/{accountID}/suggestions
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	current, history, err := s.svc.Suggest(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, suggestResponse{CurrentSuggestion: current, History: history})
}

// GET /api/accounts/{accountID}/suggestions?limit=N
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			s.writeError(w, fmt.Errorf("%w: limit must be a positive integer", models.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	suggestions, err := s.svc.Suggestions(r.Context(), accountID(r), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// DELETE /api/accounts/{accountID}/suggestions
func (s *Server) handleClearSuggestions(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.ClearSuggestions(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"removed_count": n})
}

// POST /api/accounts/{accountID}/suggestions/{suggestionID}/resolve
func (s *Server) handleResolveSuggestion(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := models.ParseResolution(req.Outcome)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	sg, err := s.svc.ResolveSuggestion(r.Context(), accountID(r), chi.URLParam(r, "suggestionID"), res)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sg)
}

// GET /api/accounts/{accountID}/bank
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Cycle(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// PUT /api/accounts/{accountID}/bank
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings bankroll.Settings
	if err := decode(r, &settings); err != nil {
		s.writeError(w, err)
		return
	}
	c, err := s.svc.UpdateSettings(r.Context(), accountID(r), settings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// POST /api/accounts/{accountID}/bank/activate
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Activate(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// POST /api/accounts/{accountID}/bank/deactivate
func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Deactivate(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// POST /api/accounts/{accountID}/bank/results
func (s *Server) handleReportResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.IsWin == nil {
		s.writeError(w, fmt.Errorf("%w: is_win is required", models.ErrInvalidInput))
		return
	}

	c, report, err := s.svc.ReportResult(r.Context(), accountID(r), *req.IsWin)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resultResponse{Cycle: c, Report: report})
}

func accountID(r *http.Request) string {
	return chi.URLParam(r, "accountID")
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", models.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
