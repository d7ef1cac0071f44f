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
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Wallet is the points ledger (spec.md §4.E). Every mutation is an
// append-only WalletTransaction plus a cached WalletBalance update, both
// written under the caller's striped lock so concurrent credits to the
// same (user, category) never race on the read-modify-write of the
// balance. Grounded on core_wallet.go's updateWallets: read current
// balance, compute the new value, reject if negative, persist changeset
// and balance together.
type Wallet struct {
	logger   *zap.Logger
	repo     WalletRepository
	locks    *stripedLock
}

func NewWallet(logger *zap.Logger, repo WalletRepository, locks *stripedLock) *Wallet {
	return &Wallet{logger: logger, repo: repo, locks: locks}
}

// Credit increases userID's categoryID balance by amount (amount must be
// positive; use Debit for decreases). referenceID, if non-empty, is
// enforced unique per (userID, categoryID, referenceID, txType); a repeat
// call with the same referenceID fails with KindConflict rather than
// silently re-applying (spec.md §7). Callers that need an idempotent
// retry must check their own history before calling Credit again.
func (w *Wallet) Credit(userID, categoryID string, amount int64, txType WalletTransactionType, description, referenceID string, metadata map[string]interface{}) (int64, error) {
	if amount <= 0 {
		return 0, ErrZeroAmount
	}
	var balance int64
	var err error
	w.locks.WithUser(userID, func() {
		balance, err = w.applyLocked(userID, categoryID, amount, txType, description, referenceID, metadata)
	})
	return balance, err
}

// Debit decreases userID's categoryID balance by amount, failing with
// KindInsufficientBalance if the balance would go negative.
func (w *Wallet) Debit(userID, categoryID string, amount int64, txType WalletTransactionType, description, referenceID string, metadata map[string]interface{}) (int64, error) {
	if amount <= 0 {
		return 0, ErrZeroAmount
	}
	var balance int64
	var err error
	w.locks.WithUser(userID, func() {
		balance, err = w.applyLocked(userID, categoryID, -amount, txType, description, referenceID, metadata)
	})
	return balance, err
}

// applyLocked must only be called while holding the stripe for userID. A
// duplicate referenceID is not a silent no-op here: the repository rejects
// it with KindConflict (spec.md §7 "duplicate referenceId on ledger write:
// surface 409"), and that error is passed straight through to the caller.
// Callers that want idempotent retries (the Reward Engine) check their own
// history table before ever reaching the wallet.
func (w *Wallet) applyLocked(userID, categoryID string, delta int64, txType WalletTransactionType, description, referenceID string, metadata map[string]interface{}) (int64, error) {
	current, err := w.repo.GetBalance(userID, categoryID)
	if err != nil {
		return 0, NewRetrievalError("reading wallet balance", err)
	}
	newBalance := current.Balance + delta
	if newBalance < 0 {
		return 0, NewInsufficientBalanceError(fmt.Sprintf("category %s balance %d cannot absorb delta %d", categoryID, current.Balance, delta))
	}

	tx := &WalletTransaction{
		ID:          uuid.Must(uuid.NewV4()).String(),
		UserID:      userID,
		CategoryID:  categoryID,
		Type:        txType,
		Amount:      delta,
		Description: description,
		ReferenceID: referenceID,
		Metadata:    metadata,
		Timestamp:   time.Now().UTC(),
	}
	if err := w.repo.AppendTransaction(tx); err != nil {
		if KindOf(err) == KindConflict {
			return 0, err
		}
		return 0, NewStorageError("appending wallet transaction", err)
	}
	if err := w.repo.SaveBalance(&WalletBalance{UserID: userID, CategoryID: categoryID, Balance: newBalance, UpdatedAt: tx.Timestamp}); err != nil {
		return 0, NewStorageError("saving wallet balance", err)
	}
	return newBalance, nil
}

// Transfer moves amount from fromUserID to toUserID within categoryID,
// debiting one and crediting the other as a single atomic pair (spec.md
// §4.E: "a transfer either both legs commit or neither does"). Both user
// stripes are held for the duration via the canonical lock order in
// stripedLock.WithUsers, so a concurrent transfer in the opposite
// direction between the same two users cannot deadlock.
func (w *Wallet) Transfer(fromUserID, toUserID, categoryID string, amount int64, referenceID string, metadata map[string]interface{}) error {
	if amount <= 0 {
		return ErrZeroAmount
	}
	if fromUserID == toUserID {
		return ErrSelfTransfer
	}

	var outcome error
	w.locks.WithUsers(fromUserID, toUserID, func() {
		fromBalance, err := w.repo.GetBalance(fromUserID, categoryID)
		if err != nil {
			outcome = NewRetrievalError("reading source wallet balance", err)
			return
		}
		newFromBalance := fromBalance.Balance - amount
		if newFromBalance < 0 {
			outcome = NewInsufficientBalanceError(fmt.Sprintf("source balance %d insufficient for transfer of %d", fromBalance.Balance, amount))
			return
		}
		toBalance, err := w.repo.GetBalance(toUserID, categoryID)
		if err != nil {
			outcome = NewRetrievalError("reading destination wallet balance", err)
			return
		}
		newToBalance := toBalance.Balance + amount

		now := time.Now().UTC()
		outTx := &WalletTransaction{
			ID: uuid.Must(uuid.NewV4()).String(), UserID: fromUserID, CategoryID: categoryID,
			Type: TxTransferOut, Amount: -amount, Description: "transfer to " + toUserID,
			ReferenceID: referenceID, Metadata: metadata, Timestamp: now,
		}
		inTx := &WalletTransaction{
			ID: uuid.Must(uuid.NewV4()).String(), UserID: toUserID, CategoryID: categoryID,
			Type: TxTransferIn, Amount: amount, Description: "transfer from " + fromUserID,
			ReferenceID: referenceID, Metadata: metadata, Timestamp: now,
		}
		if err := w.repo.AppendTransactions([]*WalletTransaction{outTx, inTx}); err != nil {
			if KindOf(err) == KindConflict {
				outcome = err
			} else {
				outcome = NewStorageError("appending transfer transaction pair", err)
			}
			return
		}
		if err := w.repo.SaveBalance(&WalletBalance{UserID: fromUserID, CategoryID: categoryID, Balance: newFromBalance, UpdatedAt: now}); err != nil {
			outcome = NewStorageError("saving source wallet balance", err)
			return
		}
		if err := w.repo.SaveBalance(&WalletBalance{UserID: toUserID, CategoryID: categoryID, Balance: newToBalance, UpdatedAt: now}); err != nil {
			outcome = NewStorageError("saving destination wallet balance", err)
			return
		}
	})
	return outcome
}

// GetBalance returns userID's current categoryID balance.
func (w *Wallet) GetBalance(userID, categoryID string) (int64, error) {
	b, err := w.repo.GetBalance(userID, categoryID)
	if err != nil {
		return 0, NewRetrievalError("reading wallet balance", err)
	}
	return b.Balance, nil
}

// GetBalancesByCategory returns every category balance for userID.
func (w *Wallet) GetBalancesByCategory(userID string) (map[string]int64, error) {
	balances, err := w.repo.GetBalancesByCategory(userID)
	if err != nil {
		return nil, NewRetrievalError("reading wallet balances", err)
	}
	return balances, nil
}

// GetTransactions returns userID's categoryID ledger entries within
// [from, to]; either bound may be nil for an open range.
func (w *Wallet) GetTransactions(userID, categoryID string, from, to *time.Time) ([]*WalletTransaction, error) {
	txs, err := w.repo.GetTransactions(userID, categoryID, from, to)
	if err != nil {
		return nil, NewRetrievalError("reading wallet transactions", err)
	}
	return txs, nil
}
