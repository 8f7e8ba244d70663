package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mcclellann/laborledger/pkg/ledger"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
)

// RunTrigger starts a plan update run on demand.
type RunTrigger interface {
	RunNow(ctx context.Context) (models.RunReport, error)
}

// Server exposes the operator surface: health, metrics, balances and manual runs.
type Server struct {
	storage    store.Storage
	ledger     *ledger.Ledger
	runs       RunTrigger
	gatherer   prometheus.Gatherer
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewServer builds the server. runTimeout bounds manual runs, which outlive the
// request that started them.
func NewServer(s store.Storage, led *ledger.Ledger, runs RunTrigger, gatherer prometheus.Gatherer, runTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		storage:    s,
		ledger:     led,
		runs:       runs,
		gatherer:   gatherer,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

// Routes builds the router.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/payout-factor", s.payoutFactorHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}/balance", s.balanceHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}/statement", s.statementHandler).Methods("GET")
	router.HandleFunc("/transactions/divergent", s.divergentHandler).Methods("GET")
	router.HandleFunc("/runs", s.triggerRunHandler).Methods("POST")
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) payoutFactorHandler(w http.ResponseWriter, r *http.Request) {
	factor, err := s.storage.LatestPayoutFactor(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "No payout factor computed yet", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to load payout factor", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, factor)
}

// account resolves the {id} path variable, writing the error response itself.
func (s *Server) account(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return nil, false
	}
	acc, err := s.storage.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return nil, false
	}
	return acc, true
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.account(w, r)
	if !ok {
		return
	}
	balance, err := s.ledger.Balance(r.Context(), acc.ID)
	if err != nil {
		s.logger.Error("failed to compute balance", zap.String("account_id", acc.ID.String()), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":   acc.ID,
		"account_type": acc.Type,
		"balance":      balance,
	})
}

func (s *Server) statementHandler(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.account(w, r)
	if !ok {
		return
	}
	entries, err := s.ledger.Statement(r.Context(), acc.ID)
	if err != nil {
		s.logger.Error("failed to build statement", zap.String("account_id", acc.ID.String()), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) divergentHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.DivergentTransactions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) triggerRunHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.runTimeout)
	defer cancel()

	report, err := s.runs.RunNow(ctx)
	if err != nil {
		s.logger.Error("manual plan update run finished with errors", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"report": report, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
