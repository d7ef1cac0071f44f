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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	gometrics "github.com/armon/go-metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aliBordbar1992/gamification-engine-sub002/server"
)

var (
	version  string
	commitID string
)

// main wires every core component and the HTTP controller layer together,
// following the flat composition-root shape of nakama's own main.go: parse
// args, set up logging and metrics, construct services bottom-up, start
// the long-running ones, then block on an OS signal for graceful shutdown.
func main() {
	semver := fmt.Sprintf("%s+%s", version, commitID)

	consoleLogger := server.NewJSONLogger(os.Stdout, zapcore.InfoLevel)

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println(semver)
		return
	}

	config := server.ParseArgs(consoleLogger, os.Args)

	logger, multiLogger := server.SetupLogging(consoleLogger, config.Logger)

	memSink := gometrics.NewInmemSink(10*time.Second, time.Minute)
	fanout := &gometrics.FanoutSink{memSink}
	gometrics.NewGlobal(&gometrics.Config{EnableRuntimeMetrics: true, ProfileInterval: 5 * time.Second}, fanout)
	metrics := server.NewGoMetrics(fanout)

	multiLogger.Info("gamification engine starting",
		zap.String("name", config.Name), zap.String("version", semver), zap.Int("port", config.Port))

	locks := server.NewStripedLock()

	eventRepo := server.NewMemoryEventRepository()
	userStateRepo := server.NewMemoryUserStateRepository()
	ruleRepo := server.NewMemoryRuleRepository()
	entityRepo := server.NewMemoryEntityRepository()
	walletRepo := server.NewMemoryWalletRepository()
	rewardHistoryRepo := server.NewMemoryRewardHistoryRepository()
	webhookRepo := server.NewMemoryWebhookRepository()

	entityCatalog, err := server.NewEntityCatalog(entityRepo)
	if err != nil {
		multiLogger.Fatal("failed to load entity catalog", zap.Error(err))
	}

	wallet := server.NewWallet(logger, walletRepo, locks)
	pluginRegistry := server.NewPluginRegistry(logger)
	conditionEngine := server.NewConditionEngine(pluginRegistry)
	rewardEngine := server.NewRewardEngine(logger, wallet, entityCatalog, rewardHistoryRepo, pluginRegistry)
	evaluator := server.NewEvaluator(logger, ruleRepo, eventRepo, userStateRepo, wallet, rewardEngine, conditionEngine)
	dryRun := server.NewDryRunService(logger, ruleRepo, eventRepo, userStateRepo, entityCatalog, conditionEngine)

	leaderboard := server.NewLeaderboardProjector(userStateRepo, walletRepo, eventRepo, metrics)
	entityCatalog.OnInvalidate(leaderboard.Invalidate)

	queue := server.NewEventQueue(logger, metrics, config.Engine.EventQueueSize)
	processor := server.NewProcessor(logger, metrics, queue, eventRepo, evaluator, locks, config.Engine.EventQueueWorkers)

	httpServer := server.NewHTTPServer(logger, config, server.HTTPServerDeps{
		Events:      eventRepo,
		Rules:       ruleRepo,
		Entities:    entityCatalog,
		EntityRepo:  entityRepo,
		UserState:   userStateRepo,
		Wallet:      wallet,
		Rewards:     rewardHistoryRepo,
		Queue:       queue,
		DryRun:      dryRun,
		Leaderboard: leaderboard,
		PluginReg:   pluginRegistry,
		Webhooks:    webhookRepo,
	})

	processor.Start()
	httpServer.Start()

	multiLogger.Info("startup done")

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	multiLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		multiLogger.Error("HTTP server did not shut down cleanly", zap.Error(err))
	}
	processor.Stop()

	multiLogger.Info("shutdown complete",
		zap.Uint64("eventsProcessed", processor.ProcessedEventCount()),
		zap.Uint64("eventErrors", processor.ErrorCount()))
}
