package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubeiqiao/Literature-screening/internal/criteria"
	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/pipeline"
	"github.com/hubeiqiao/Literature-screening/internal/store"
	"github.com/hubeiqiao/Literature-screening/internal/webhook"
)

// maxBodyBytes bounds request bodies. Abstracts run long but never this
// long.
const maxBodyBytes = 1 << 20

// maxRunsPage caps how many run-history entries one request may read.
const maxRunsPage = 25

type triageRequest struct {
	Provider        string `json:"provider"`
	UsageMode       string `json:"usageMode"`
	Model           string `json:"model"`
	ReasoningEffort string `json:"reasoningEffort"`
	APIKey          string `json:"apiKey"`

	Entry struct {
		Type   string            `json:"type"`
		Key    string            `json:"key"`
		Fields map[string]string `json:"fields"`
	} `json:"entry"`

	Instructions criteria.TextInput `json:"instructions"`
	Heuristics   *criteria.Criteria `json:"heuristics"`
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Entry.Key == "" {
		writeError(w, http.StatusBadRequest, "entry key is required")
		return
	}

	result, err := s.pipeline.Run(r.Context(), pipeline.RunInput{
		CallerID:        s.resolveCaller(r),
		Provider:        req.Provider,
		UsageMode:       pipeline.UsageMode(req.UsageMode),
		ModelID:         req.Model,
		ReasoningEffort: req.ReasoningEffort,
		APIKey:          req.APIKey,
		Record: model.BibRecord{
			Type:   req.Entry.Type,
			Key:    req.Entry.Key,
			Fields: req.Entry.Fields,
		},
		Instructions: req.Instructions,
		Heuristics:   req.Heuristics,
	})
	if err != nil {
		s.writeTriageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeTriageError(w http.ResponseWriter, err error) {
	var insufficient *pipeline.InsufficientCreditError
	if eris.As(err, &insufficient) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":              "insufficient credit",
			"balanceCents":       insufficient.BalanceCents,
			"estimatedCostCents": insufficient.EstimatedCents,
		})
		return
	}
	var exhausted *store.InsufficientCreditError
	if eris.As(err, &exhausted) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":        "credit exhausted while finalizing",
			"balanceCents": exhausted.BalanceCents,
		})
		return
	}

	switch {
	case eris.Is(err, pipeline.ErrCallerRequired):
		writeError(w, http.StatusUnauthorized, "caller identity required")
	case eris.Is(err, pipeline.ErrAPIKeyRequired):
		writeError(w, http.StatusBadRequest, "api key required for byok usage")
	case eris.Is(err, pipeline.ErrManagedUnavailable):
		writeError(w, http.StatusBadRequest, "managed usage not available for this provider")
	case eris.Is(err, pipeline.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "unknown provider")
	default:
		zap.L().Error("triage request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "triage failed")
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	callerID := s.resolveCaller(r)
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	limit := queryInt(r, "limit", maxRunsPage)
	if limit > maxRunsPage {
		limit = maxRunsPage
	}
	runs, err := s.store.ListRuns(r.Context(), callerID, limit)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.TriageRun{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	callerID := s.resolveCaller(r)
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	snapshot, err := s.ledger.Balance(r.Context(), callerID)
	if err != nil {
		zap.L().Error("balance lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balanceCents": snapshot.BalanceCents,
		"updatedAt":    snapshot.UpdatedAt,
		"enabled":      s.ledger.Enabled(),
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	callerID := s.resolveCaller(r)
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	limit := queryInt(r, "limit", 50)
	transactions, err := s.ledger.History(r.Context(), callerID, limit)
	if err != nil {
		zap.L().Error("transaction history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if transactions == nil {
		transactions = []model.LedgerTransaction{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

// handleWebhook authenticates and applies a payment event. Signature
// failures are the only non-200: once the payload is authenticated the
// endpoint acks regardless of whether the event moved money, so the
// provider stops redelivering it. Processing failures are logged and
// acked too; the idempotency marker is only written on success, so a
// later manual replay can still credit.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	event, err := webhook.VerifySignature(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret)
	if err != nil {
		zap.L().Warn("webhook signature rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := s.ingester.Process(r.Context(), event); err != nil {
		zap.L().Error("webhook processing failed", zap.String("event_id", event.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
