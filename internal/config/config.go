package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

type EngineConfig struct {
	// StackSize accepts human-readable sizes ("512B", "1KiB").
	StackSize    string `yaml:"stack_size"`
	BranchBudget int    `yaml:"branch_budget"`
}

type UpdateConfig struct {
	// ManifestTemplate is the fetch URI pattern; {addr} is replaced with the
	// address supplied to /pull.
	ManifestTemplate string `yaml:"manifest_template"`
	TargetSlot       string `yaml:"target_slot"`
	MaxAddressLen    int    `yaml:"max_address_len"`
	FetchTimeoutMs   int    `yaml:"fetch_timeout_ms"`
	MaxImageBytes    int    `yaml:"max_image_bytes"`
	QueueSize        int    `yaml:"queue_size"`
}

type ExecPoolConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
	History   int `yaml:"history"`
}

type Config struct {
	Listen   string         `yaml:"listen"`
	Board    string         `yaml:"board"`
	DBPath   string         `yaml:"db_path"`
	Slots    []string       `yaml:"slots"`
	Engine   EngineConfig   `yaml:"engine"`
	Update   UpdateConfig   `yaml:"update"`
	ExecPool ExecPoolConfig `yaml:"exec_pool"`

	// StackBytes is the parsed Engine.StackSize, populated by Load.
	StackBytes int `yaml:"-"`
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Listen: "127.0.0.1:8383",
		Board:  "native",
		DBPath: "./bpfgate.db",
		Slots:  []string{"ram.0", "ram.1"},
		Engine: EngineConfig{
			StackSize:    "512B",
			BranchBudget: 100,
		},
		Update: UpdateConfig{
			ManifestTemplate: "http://[{addr}]/suit_manifest.signed",
			TargetSlot:       "ram.0",
			MaxAddressLen:    45, // longest textual IPv6 address
			FetchTimeoutMs:   30000,
			MaxImageBytes:    64 * 1024,
			QueueSize:        8,
		},
		ExecPool: ExecPoolConfig{
			Workers:   4,
			QueueSize: 16,
			History:   32,
		},
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	stackBytes, err := units.RAMInBytes(cfg.Engine.StackSize)
	if err != nil {
		return nil, fmt.Errorf("invalid stack_size %q: %w", cfg.Engine.StackSize, err)
	}
	cfg.StackBytes = int(stackBytes)

	return cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Slots) == 0 {
		return fmt.Errorf("at least one storage slot is required")
	}
	if cfg.Engine.BranchBudget <= 0 {
		return fmt.Errorf("branch_budget must be positive")
	}
	if !strings.Contains(cfg.Update.ManifestTemplate, "{addr}") {
		return fmt.Errorf("manifest_template must contain {addr}")
	}
	if cfg.Update.MaxAddressLen <= 0 {
		return fmt.Errorf("max_address_len must be positive")
	}
	if cfg.ExecPool.Workers <= 0 {
		return fmt.Errorf("exec_pool workers must be positive")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BPFGATE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("BPFGATE_BOARD"); v != "" {
		cfg.Board = v
	}
	if v := os.Getenv("BPFGATE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BPFGATE_SLOTS"); v != "" {
		cfg.Slots = strings.Split(v, ",")
	}
	if v := os.Getenv("BPFGATE_STACK_SIZE"); v != "" {
		cfg.Engine.StackSize = v
	}
	if v := os.Getenv("BPFGATE_BRANCH_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.BranchBudget = n
		}
	}
	if v := os.Getenv("BPFGATE_MANIFEST_TEMPLATE"); v != "" {
		cfg.Update.ManifestTemplate = v
	}
	if v := os.Getenv("BPFGATE_UPDATE_TARGET_SLOT"); v != "" {
		cfg.Update.TargetSlot = v
	}
}
