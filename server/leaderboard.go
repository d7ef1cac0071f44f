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
	"bytes"
	"sync"
	"time"

	"github.com/aliBordbar1992/gamification-engine-sub002/internal/cronexpr"
	"github.com/aliBordbar1992/gamification-engine-sub002/internal/skiplist"
)

// LeaderboardKind is one of the four supported rankings (spec.md §4.K).
type LeaderboardKind string

const (
	LeaderboardPoints   LeaderboardKind = "points"
	LeaderboardBadges   LeaderboardKind = "badges"
	LeaderboardTrophies LeaderboardKind = "trophies"
	LeaderboardLevel    LeaderboardKind = "level"
)

// TimeRange is the ranking window.
type TimeRange string

const (
	RangeDaily   TimeRange = "daily"
	RangeWeekly  TimeRange = "weekly"
	RangeMonthly TimeRange = "monthly"
	RangeAllTime TimeRange = "alltime"
)

// resetSchedules map each windowed range to the cron boundary that opens
// a new window, mirroring core_leaderboard.go's use of cronexpr for
// leaderboard reset schedules.
var resetSchedules = map[TimeRange]*cronexpr.Expression{
	RangeDaily:   cronexpr.MustParse("0 0 * * *"),
	RangeWeekly:  cronexpr.MustParse("0 0 * * 0"),
	RangeMonthly: cronexpr.MustParse("0 0 1 * *"),
}

// windowBounds returns the inclusive-start, exclusive-end UTC boundary of
// the window containing reference for rng (spec.md §4.K: "inclusive-start,
// exclusive-end, in UTC calendar units"). alltime has no bound.
func windowBounds(rng TimeRange, reference time.Time) (start, end time.Time, bounded bool) {
	expr, ok := resetSchedules[rng]
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	reference = reference.UTC()
	start = expr.Last(reference)
	end = expr.Next(start)
	return start, end, true
}

// leaderboardKey identifies one ranked view: a kind, an optional category
// (points/level are per-category; badges/trophies are global), and a time
// range.
type leaderboardKey struct {
	Kind     LeaderboardKind
	Category string
	Range    TimeRange
}

// rankEntry is the skiplist payload. Ties break on UserID for a
// deterministic total order, the same role uuid comparison plays in
// nakama's RankAsc/RankDesc.
type rankEntry struct {
	UserID string
	Score  int64
}

func (r rankEntry) Less(other interface{}) bool {
	o := other.(rankEntry)
	if r.Score != o.Score {
		// Descending: a higher score ranks first (rank 1).
		return r.Score > o.Score
	}
	return bytes.Compare([]byte(r.UserID), []byte(o.UserID)) < 0
}

// leaderboardCacheEntry is one cached ranking, grounded on nakama's
// RankCache (skiplist + owner index) from leaderboard_rank_cache.go.
type leaderboardCacheEntry struct {
	mu        sync.RWMutex
	list      *skiplist.SkipList
	owners    map[string]*skiplist.Element
	computedAt time.Time
}

// leaderboardCacheTTL bounds how long a computed ranking is served before
// being recomputed from repositories (spec.md §4.K cache design).
const leaderboardCacheTTL = 30 * time.Second

// LeaderboardProjector computes and caches rankings over UserState/Wallet
// data. Cache entries are invalidated by time (TTL) and by explicit
// Invalidate calls wired from EntityCatalog writes that affect a category
// (e.g. a level threshold change). Per SPEC_FULL.md §K, no singleflight
// dependency is introduced: a per-key mutex already serializes concurrent
// recomputation, matching LocalLeaderboardRankCache's own lock-around-
// read-check-create pattern.
type LeaderboardProjector struct {
	userState UserStateRepository
	wallet    WalletRepository
	events    EventRepository
	metrics   Metrics

	mu    sync.Mutex
	cache map[leaderboardKey]*leaderboardCacheEntry
}

func NewLeaderboardProjector(userState UserStateRepository, wallet WalletRepository, events EventRepository, metrics Metrics) *LeaderboardProjector {
	return &LeaderboardProjector{
		userState: userState, wallet: wallet, events: events, metrics: metrics,
		cache: map[leaderboardKey]*leaderboardCacheEntry{},
	}
}

// Invalidate drops every cached entry for category (or every entry,
// passing "" for category), forcing the next Rank call to recompute.
func (p *LeaderboardProjector) Invalidate(category string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if category == "" {
		p.cache = map[leaderboardKey]*leaderboardCacheEntry{}
		return
	}
	for k := range p.cache {
		if k.Category == category {
			delete(p.cache, k)
		}
	}
}

// RankEntry is one row of a ranking result.
type RankEntry struct {
	Rank   int
	UserID string
	Score  int64
}

// MinPageSize and MaxPageSize bound the pageSize parameter accepted by
// Rank (spec.md §4.K: "pageSize ∈ [1, 1000]").
const (
	MinPageSize = 1
	MaxPageSize = 1000
)

// ErrInvalidPage is returned when page is not a positive 1-based page
// number.
var ErrInvalidPage = NewValidationError("page must be >= 1")

// ErrInvalidPageSize is returned when pageSize falls outside [MinPageSize,
// MaxPageSize].
var ErrInvalidPageSize = NewValidationError("pageSize must be between 1 and 1000")

// Rank returns one page of the ranking for the given leaderboard view as
// of reference (used to resolve the windowed boundary; pass time.Now()
// for "current"). page is 1-based; pageSize must be within [1, 1000].
// Rank numbers are dense over the whole dataset: page 2 with pageSize 50
// starts at rank 51, independent of how many pages precede it (spec.md
// §4.K).
func (p *LeaderboardProjector) Rank(kind LeaderboardKind, category string, rng TimeRange, reference time.Time, page, pageSize int) ([]RankEntry, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return nil, ErrInvalidPageSize
	}

	key := leaderboardKey{Kind: kind, Category: category, Range: rng}
	entry, hit, err := p.getOrCompute(key, reference)
	if err != nil {
		return nil, err
	}
	p.metrics.CountLeaderboardCacheHit(hit)

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	startRank := (page-1)*pageSize + 1
	out := make([]RankEntry, 0, pageSize)
	el := entry.list.GetElementByRank(startRank)
	rank := startRank
	for el != nil && len(out) < pageSize {
		re := el.Value.(rankEntry)
		out = append(out, RankEntry{Rank: rank, UserID: re.UserID, Score: re.Score})
		el = el.Next()
		rank++
	}
	return out, nil
}

// UserRank returns userID's current rank and score in the view, or
// (0, 0, false) if the user has no entry.
func (p *LeaderboardProjector) UserRank(kind LeaderboardKind, category string, rng TimeRange, reference time.Time, userID string) (int, int64, bool, error) {
	key := leaderboardKey{Kind: kind, Category: category, Range: rng}
	entry, hit, err := p.getOrCompute(key, reference)
	if err != nil {
		return 0, 0, false, err
	}
	p.metrics.CountLeaderboardCacheHit(hit)

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	el, ok := entry.owners[userID]
	if !ok {
		return 0, 0, false, nil
	}
	re := el.Value.(rankEntry)
	return entry.list.GetRank(re), re.Score, true, nil
}

func (p *LeaderboardProjector) getOrCompute(key leaderboardKey, reference time.Time) (*leaderboardCacheEntry, bool, error) {
	p.mu.Lock()
	entry, ok := p.cache[key]
	if ok {
		p.mu.Unlock()
		entry.mu.RLock()
		fresh := time.Since(entry.computedAt) < leaderboardCacheTTL
		entry.mu.RUnlock()
		if fresh {
			return entry, true, nil
		}
	} else {
		entry = &leaderboardCacheEntry{}
		p.cache[key] = entry
		p.mu.Unlock()
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	// Re-check after acquiring the write lock: another goroutine may have
	// already recomputed while we waited (grounded directly in
	// LocalLeaderboardRankCache.Insert's own "last check" comment; no
	// singleflight needed, per SPEC_FULL.md §K).
	if time.Since(entry.computedAt) < leaderboardCacheTTL {
		return entry, true, nil
	}

	list, owners, err := p.compute(key, reference)
	if err != nil {
		return nil, false, err
	}
	entry.list = list
	entry.owners = owners
	entry.computedAt = time.Now()
	return entry, false, nil
}

func (p *LeaderboardProjector) compute(key leaderboardKey, reference time.Time) (*skiplist.SkipList, map[string]*skiplist.Element, error) {
	userIDs, err := p.userState.AllUserIDs()
	if err != nil {
		return nil, nil, NewRetrievalError("listing users for leaderboard", err)
	}

	list := skiplist.New()
	owners := make(map[string]*skiplist.Element, len(userIDs))

	for _, userID := range userIDs {
		score, ok, err := p.scoreFor(key, userID, reference)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		el := list.Insert(rankEntry{UserID: userID, Score: score})
		owners[userID] = el
	}
	return list, owners, nil
}

func (p *LeaderboardProjector) scoreFor(key leaderboardKey, userID string, reference time.Time) (int64, bool, error) {
	switch key.Kind {
	case LeaderboardBadges, LeaderboardTrophies:
		state, err := p.userState.GetByUser(userID)
		if err != nil {
			return 0, false, NewRetrievalError("loading user state for leaderboard", err)
		}
		if key.Kind == LeaderboardBadges {
			return int64(len(state.Badges)), len(state.Badges) > 0, nil
		}
		return int64(len(state.Trophies)), len(state.Trophies) > 0, nil
	case LeaderboardLevel:
		state, err := p.userState.GetByUser(userID)
		if err != nil {
			return 0, false, NewRetrievalError("loading user state for leaderboard", err)
		}
		return state.PointsByCategory[key.Category], len(state.LevelByCategory) > 0, nil
	case LeaderboardPoints:
		return p.pointsScore(key, userID, reference)
	default:
		return 0, false, NewRuleEvaluationError("unknown leaderboard kind: "+string(key.Kind), nil)
	}
}

// pointsScore computes the ranked score for the "points" kind: the
// current balance for alltime, or the sum of positive "earn" ledger
// transactions within the window for windowed ranges (spec.md §4.K:
// "rank by sum of positive ledger transactions of type earn... excludes
// spend/transfer/penalty").
func (p *LeaderboardProjector) pointsScore(key leaderboardKey, userID string, reference time.Time) (int64, bool, error) {
	start, end, bounded := windowBounds(key.Range, reference)
	if !bounded {
		balance, err := p.wallet.GetBalance(userID, key.Category)
		if err != nil {
			return 0, false, NewRetrievalError("reading wallet balance for leaderboard", err)
		}
		return balance.Balance, true, nil
	}

	txs, err := p.wallet.GetTransactions(userID, key.Category, &start, &end)
	if err != nil {
		return 0, false, NewRetrievalError("reading wallet transactions for leaderboard window", err)
	}
	var sum int64
	for _, tx := range txs {
		if tx.Type == TxEarn && tx.Amount > 0 {
			sum += tx.Amount
		}
	}
	return sum, sum > 0, nil
}
