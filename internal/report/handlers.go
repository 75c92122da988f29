package report

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cryptodesk/advisor-engine/internal/store"
)

// GenerateRequest is the JSON body for POST /api/v1/reports/generate.
type GenerateRequest struct {
	MessageID string `json:"message_id"`
}

// DecisionRequest is the JSON body for approve and reject.
type DecisionRequest struct {
	Auditor string `json:"auditor"`
	Reason  string `json:"reason,omitempty"`
}

// DeleteRequest is the JSON body for batch deletion.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// ListReports handles GET /api/v1/reports
func (s *Service) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context())
	if err != nil {
		writeError(w, "failed to list reports", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// GetReport handles GET /api/v1/reports/{reportID}
func (s *Service) GetReport(w http.ResponseWriter, r *http.Request) {
	rpt, err := s.store.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, "report not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rpt)
}

// DeleteReports handles DELETE /api/v1/reports
func (s *Service) DeleteReports(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, "ids is required", http.StatusBadRequest)
		return
	}
	if err := s.store.DeleteReports(r.Context(), req.IDs); err != nil {
		writeError(w, "failed to delete reports", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

// Generate handles POST /api/v1/reports/generate
func (s *Service) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MessageID == "" {
		writeError(w, "message_id is required", http.StatusBadRequest)
		return
	}

	rpt, err := s.GenerateForMessage(r.Context(), req.MessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "message not found", http.StatusNotFound)
			return
		}
		writeError(w, "report generation failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, rpt)
}

// GenerateSummaryReport handles POST /api/v1/reports/generate-summary
func (s *Service) GenerateSummaryReport(w http.ResponseWriter, r *http.Request) {
	rpt, err := s.GenerateSummary(r.Context())
	if err != nil {
		writeError(w, "summary generation failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, rpt)
}

// ApproveReport handles POST /api/v1/reports/{reportID}/approve
func (s *Service) ApproveReport(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Auditor == "" {
		writeError(w, "auditor is required", http.StatusBadRequest)
		return
	}

	rpt, err := s.Approve(r.Context(), chi.URLParam(r, "reportID"), req.Auditor)
	if err != nil {
		writeDecisionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rpt)
}

// RejectReport handles POST /api/v1/reports/{reportID}/reject
func (s *Service) RejectReport(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Auditor == "" {
		writeError(w, "auditor is required", http.StatusBadRequest)
		return
	}

	rpt, err := s.Reject(r.Context(), chi.URLParam(r, "reportID"), req.Auditor, req.Reason)
	if err != nil {
		writeDecisionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rpt)
}

func writeDecisionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "report not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, "failed to update report", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
