// Copyright 2024 The Gamification Engine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HTTPServer is the thin JSON controller layer over the core (spec.md §6).
// The controller layer itself is named an out-of-scope external
// collaborator in spec.md §1 ("interfaces only") — the rule/reward/wallet
// logic below it is the part this module actually specifies — but a
// runnable service needs it wired, so it is built the way nakama wires its
// own ops/console HTTP surface: a mux.Router behind gorilla/handlers CORS
// and logging middleware (server/ops_accepter.go, server/console.go).
type HTTPServer struct {
	logger *zap.Logger
	config *Config

	router *mux.Router
	srv    *http.Server

	events      EventRepository
	rules       RuleRepository
	entities    *EntityCatalog
	entityRepo  EntityRepository
	userState   UserStateRepository
	wallet      *Wallet
	rewards     RewardHistoryRepository
	queue       *EventQueue
	dryRun      *DryRunService
	leaderboard *LeaderboardProjector
	pluginReg   *PluginRegistry
	webhooks    WebhookRepository
}

// HTTPServerDeps bundles every collaborator HTTPServer's handlers touch.
type HTTPServerDeps struct {
	Events      EventRepository
	Rules       RuleRepository
	Entities    *EntityCatalog
	EntityRepo  EntityRepository
	UserState   UserStateRepository
	Wallet      *Wallet
	Rewards     RewardHistoryRepository
	Queue       *EventQueue
	DryRun      *DryRunService
	Leaderboard *LeaderboardProjector
	PluginReg   *PluginRegistry
	Webhooks    WebhookRepository
}

func NewHTTPServer(logger *zap.Logger, config *Config, deps HTTPServerDeps) *HTTPServer {
	s := &HTTPServer{
		logger: logger, config: config,
		router: mux.NewRouter(),

		events: deps.Events, rules: deps.Rules, entities: deps.Entities,
		entityRepo: deps.EntityRepo, userState: deps.UserState, wallet: deps.Wallet,
		rewards: deps.Rewards, queue: deps.Queue, dryRun: deps.DryRun,
		leaderboard: deps.Leaderboard, pluginReg: deps.PluginReg, webhooks: deps.Webhooks,
	}

	s.registerEventRoutes()
	s.registerRuleRoutes()
	s.registerEntityRoutes()
	s.registerUserRoutes()
	s.registerLeaderboardRoutes()
	s.registerWalletRoutes()
	s.registerWebhookRoutes()
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	corsHandler := handlers.CORS(handlers.AllowedOrigins([]string{"*"}))(s.router)
	loggedHandler := handlers.CombinedLoggingHandler(zapStdWriter{logger}, corsHandler)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: loggedHandler,
	}
	return s
}

// Start begins serving in the background. ListenAndServe's error, if the
// listener could not be bound, is logged fatally the same way nakama's
// accepters treat a failed bind.
func (s *HTTPServer) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	s.logger.Info("HTTP server listening", zap.Int("port", s.config.Port))
}

// Stop gracefully shuts the HTTP server down, waiting for in-flight
// requests to complete or ctx to expire, whichever comes first.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// zapStdWriter adapts a zap.Logger to the io.Writer CombinedLoggingHandler
// expects for its access log line.
type zapStdWriter struct{ logger *zap.Logger }

func (z zapStdWriter) Write(p []byte) (int, error) {
	z.logger.Info(string(p))
	return len(p), nil
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the spec's uniform error shape (spec.md §6: `{
// "error": "<message>" }`), deriving the status code from the error's
// DomainError kind when present.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch KindOf(err) {
	case KindValidation:
		status = http.StatusBadRequest
	case KindNotFound:
		status = http.StatusNotFound
	case KindConflict, KindInsufficientBalance:
		status = http.StatusConflict
	case KindStorage, KindRetrieval, KindRuleEvaluation, KindUnexpected:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}
