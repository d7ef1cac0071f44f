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
	"flag"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the engine's root configuration. Loading it from a file or
// the wire is an out-of-scope external collaborator (spec.md §1); this
// struct and its defaults are the ambient piece every deployment needs
// regardless, grounded on nakama's own config.go layout (one struct per
// concern, each with a NewXConfig default constructor).
type Config struct {
	Name       string            `yaml:"name" json:"name"`
	Config     string            `yaml:"config" json:"config"`
	Port       int               `yaml:"port" json:"port"`
	Logger     *LoggingConfig    `yaml:"logger" json:"logger"`
	Engine     *EngineConfig     `yaml:"engine" json:"engine"`
	Wallet     *WalletConfig     `yaml:"wallet" json:"wallet"`
	Simulation *SimulationConfig `yaml:"simulation" json:"simulation"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Name:       "gamification-engine",
		Port:       7450,
		Logger:     NewLoggingConfig(),
		Engine:     NewEngineConfig(),
		Wallet:     NewWalletConfig(),
		Simulation: NewSimulationConfig(),
	}
}

// LoggingConfig governs console/file log output (spec.md ambient stack;
// field names and rotation knobs mirror nakama's LogConfig + the
// lumberjack.Logger fields NewRotatingJSONFileLogger reads).
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Stdout     bool   `yaml:"stdout" json:"stdout"`
	File       string `yaml:"file" json:"file"`
	Rotation   bool   `yaml:"rotation" json:"rotation"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	LocalTime  bool   `yaml:"local_time" json:"local_time"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

func NewLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:  "info",
		Format: "json",
		Stdout: true,
	}
}

// EngineConfig governs the ingestion/evaluation pipeline (spec.md §4.A,
// §4.H, §4.I).
type EngineConfig struct {
	EventQueueSize       int `yaml:"event_queue_size" json:"event_queue_size"`
	EventQueueWorkers    int `yaml:"event_queue_workers" json:"event_queue_workers"`
	HistoryLimit         int `yaml:"history_limit" json:"history_limit"`
	MaxProcessingRetries int `yaml:"max_processing_retries" json:"max_processing_retries"`
}

func NewEngineConfig() *EngineConfig {
	return &EngineConfig{
		EventQueueSize:       1024,
		EventQueueWorkers:    8,
		HistoryLimit:         defaultHistoryLimit,
		MaxProcessingRetries: maxProcessingRetries,
	}
}

// WalletConfig governs the ledger (spec.md §4.E).
type WalletConfig struct {
	DefaultStripeCount int `yaml:"default_stripe_count" json:"default_stripe_count"`
}

func NewWalletConfig() *WalletConfig {
	return &WalletConfig{DefaultStripeCount: defaultStripeCount}
}

// SimulationConfig gates the dry-run sandbox endpoint (spec.md §6: "404
// when disabled").
type SimulationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

func NewSimulationConfig() *SimulationConfig {
	return &SimulationConfig{Enabled: true}
}

// ParseArgs loads a YAML config file named by --config (if present),
// falling back to NewConfig's defaults on any read/parse failure rather
// than aborting startup, matching nakama's ParseArgs fallback behavior.
func ParseArgs(logger *zap.Logger, args []string) *Config {
	config := NewConfig()

	flagSet := flag.NewFlagSet("gamification-engine", flag.ExitOnError)
	configPath := flagSet.String("config", "", "absolute path to a YAML configuration file")
	port := flagSet.Int("port", 0, "HTTP port override")
	if len(args) > 1 {
		if err := flagSet.Parse(args[1:]); err != nil {
			logger.Error("could not parse command line arguments, using defaults", zap.Error(err))
		}
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			logger.Error("could not read config file, using defaults", zap.Error(err))
		} else if err := yaml.Unmarshal(data, config); err != nil {
			logger.Error("could not parse config file, using defaults", zap.Error(err))
		} else {
			config.Config = *configPath
		}
	}
	if *port != 0 {
		config.Port = *port
	}
	return config
}
