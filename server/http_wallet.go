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
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) registerWalletRoutes() {
	s.router.HandleFunc("/api/wallet/users/{userId}/balances", s.handleWalletBalances).Methods(http.MethodGet)
	s.router.HandleFunc("/api/wallet/users/{userId}/categories/{categoryId}/balance", s.handleWalletBalance).Methods(http.MethodGet)
	s.router.HandleFunc("/api/wallet/users/{userId}/categories/{categoryId}/transactions", s.handleWalletTransactions).Methods(http.MethodGet)
	s.router.HandleFunc("/api/wallet/users/{userId}/spend", s.handleWalletSpend).Methods(http.MethodPost)
	s.router.HandleFunc("/api/wallet/transfer", s.handleWalletTransfer).Methods(http.MethodPost)
}

func (s *HTTPServer) handleWalletBalances(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	balances, err := s.wallet.GetBalancesByCategory(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *HTTPServer) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	balance, err := s.wallet.GetBalance(vars["userId"], vars["categoryId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (s *HTTPServer) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = &t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = &t
		}
	}
	txs, err := s.wallet.GetTransactions(vars["userId"], vars["categoryId"], from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// walletSpendRequest is the body for a manual spend (spec.md §4.E spending
// side of the domain, exposed here for out-of-band redemptions rather than
// rule-triggered ones).
type walletSpendRequest struct {
	CategoryID  string                 `json:"categoryId"`
	Amount      int64                  `json:"amount"`
	Description string                 `json:"description"`
	ReferenceID string                 `json:"referenceId"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (s *HTTPServer) handleWalletSpend(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var req walletSpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed spend body: "+err.Error())
		return
	}
	balance, err := s.wallet.Debit(userID, req.CategoryID, req.Amount, TxSpend, req.Description, req.ReferenceID, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

type walletTransferRequest struct {
	FromUserID  string                 `json:"fromUserId"`
	ToUserID    string                 `json:"toUserId"`
	CategoryID  string                 `json:"categoryId"`
	Amount      int64                  `json:"amount"`
	ReferenceID string                 `json:"referenceId"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (s *HTTPServer) handleWalletTransfer(w http.ResponseWriter, r *http.Request) {
	var req walletTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed transfer body: "+err.Error())
		return
	}
	if err := s.wallet.Transfer(req.FromUserID, req.ToUserID, req.CategoryID, req.Amount, req.ReferenceID, req.Metadata); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}
