package collector

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cryptodesk/advisor-engine/internal/model"
)

// CreateMessageRequest is the JSON body for message creation and update.
// UseAIAnalysis defaults to true: omitted sentiment and impact are filled
// by the analysis channel.
type CreateMessageRequest struct {
	Coin          string     `json:"coin"`
	Content       string     `json:"content"`
	Source        string     `json:"source"`
	Sentiment     string     `json:"sentiment"`
	ImpactScore   string     `json:"impact_score"`
	PublishTime   *time.Time `json:"publish_time"`
	UseAIAnalysis *bool      `json:"use_ai_analysis"`
}

// DeleteMessagesRequest is the JSON body for batch deletion.
type DeleteMessagesRequest struct {
	IDs []string `json:"ids"`
}

// ListMessages handles GET /api/v1/messages?limit=N
func (s *Service) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	messages, err := s.store.ListMessages(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// GetMessage handles GET /api/v1/messages/{messageID}
func (s *Service) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.store.GetMessage(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, "message not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// CreateMessage handles POST /api/v1/messages
func (s *Service) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Coin == "" || req.Content == "" {
		writeError(w, "coin and content are required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	publishTime := now
	if req.PublishTime != nil {
		publishTime = req.PublishTime.UTC()
	}

	msg := &model.Message{
		ID:          uuid.New().String(),
		Coin:        req.Coin,
		Content:     req.Content,
		Sentiment:   "unknown",
		ImpactScore: "0",
		Source:      req.Source,
		PublishTime: publishTime,
		Audit: model.Audit{
			CreateBy:   "api",
			CreateTime: now,
			UpdateBy:   "api",
			UpdateTime: now,
		},
	}
	if req.Sentiment != "" {
		msg.Sentiment = req.Sentiment
	}
	if req.ImpactScore != "" {
		msg.ImpactScore = req.ImpactScore
	}

	if req.UseAIAnalysis == nil || *req.UseAIAnalysis {
		s.analyze(r.Context(), msg)
	}

	if err := s.store.InsertMessage(r.Context(), msg); err != nil {
		writeError(w, "failed to create message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// UpdateMessage handles PUT /api/v1/messages/{messageID}
func (s *Service) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := s.store.GetMessage(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, "message not found", http.StatusNotFound)
		return
	}

	if req.Coin != "" {
		msg.Coin = req.Coin
	}
	if req.Content != "" {
		msg.Content = req.Content
	}
	if req.Source != "" {
		msg.Source = req.Source
	}
	if req.Sentiment != "" {
		msg.Sentiment = req.Sentiment
	}
	if req.ImpactScore != "" {
		msg.ImpactScore = req.ImpactScore
	}
	if req.PublishTime != nil {
		msg.PublishTime = req.PublishTime.UTC()
	}
	msg.UpdateBy = "api"
	msg.UpdateTime = time.Now().UTC()

	if req.UseAIAnalysis == nil || *req.UseAIAnalysis {
		s.analyze(r.Context(), msg)
	}

	if err := s.store.UpdateMessage(r.Context(), msg); err != nil {
		writeError(w, "failed to update message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DeleteMessages handles DELETE /api/v1/messages
func (s *Service) DeleteMessages(w http.ResponseWriter, r *http.Request) {
	var req DeleteMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, "ids is required", http.StatusBadRequest)
		return
	}
	if err := s.store.DeleteMessages(r.Context(), req.IDs); err != nil {
		writeError(w, "failed to delete messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

// CollectMessagesHandler handles POST /api/v1/collect/messages
func (s *Service) CollectMessagesHandler(w http.ResponseWriter, r *http.Request) {
	inserted, err := s.CollectMessages(r.Context())
	if err != nil {
		writeError(w, "message collection failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": inserted})
}

// CollectMetricsHandler handles POST /api/v1/collect/metrics
func (s *Service) CollectMetricsHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.CollectMetrics(r.Context())
	if err != nil {
		writeError(w, "metrics collection failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rows": rows})
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
