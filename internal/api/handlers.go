package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"barsim/internal/domain"
	"barsim/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "broker": s.broker.Name()})
}

// handleGetPositions returns all non-flat positions.
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.broker.GetPositions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, nonNil(positions))
}

// handleGetAccount returns the current account snapshot.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.broker.GetAccount(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, acct)
}

func (s *Server) handleGetOpenOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.broker.GetOpenOrders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, nonNil(orders))
}

func (s *Server) handleGetCompletedOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.broker.GetCompletedOrders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, nonNil(orders))
}

func (s *Server) handleGetExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.broker.GetExecutions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, nonNil(execs))
}

// handleSubmitOrder accepts a JSON domain.OrderRequest and returns the
// acknowledged order.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decoding order: "+err.Error())
		return
	}
	order, err := s.broker.PlaceOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Info("order placed", "order_id", order.ID, "symbol", order.Symbol, "side", order.Side, "qty", order.Qty)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := s.broker.CancelOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, order)
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decoding order: "+err.Error())
		return
	}
	if err := s.broker.ModifyOrder(r.Context(), id, req); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContractDetails(w http.ResponseWriter, r *http.Request) {
	inst, err := s.broker.ContractDetails(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, inst)
}

// ---------------------------------------------------------------------------
// Run journal
// ---------------------------------------------------------------------------

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.journal.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, nonNil(runs))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.journal.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleRunExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.journal.ListExecutions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, nonNil(execs))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// statusFor maps simulator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrUnknownInstrument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRiskRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
