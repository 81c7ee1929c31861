package repo

import (
	"time"
)

type Config struct {
	RepoRoot string `mapstructure:"-" toml:"-"`
	DialUrl  string `mapstructure:"dial_url" toml:"dial_url"`
	ChainID  uint64 `mapstructure:"chain_id" toml:"chain_id"`

	Log      Log      `mapstructure:"log" toml:"log"`
	Proposal Proposal `mapstructure:"proposal" toml:"proposal"`
	Executor Executor `mapstructure:"executor" toml:"executor"`
	Webhook  Webhook  `mapstructure:"webhook" toml:"webhook"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

type Proposal struct {
	// SweepInterval controls how often the advisory expiry sweeper runs
	SweepInterval time.Duration `mapstructure:"sweep_interval" toml:"sweep_interval"`
}

type Executor struct {
	// Type selects the execution backend: "eth" broadcasts through the
	// dial_url endpoint, "mock" settles in memory
	Type string `mapstructure:"type" toml:"type"`

	PrivateKey string `mapstructure:"private_key" toml:"private_key"`

	// Tokens maps token symbols to ERC20 contract addresses
	Tokens map[string]string `mapstructure:"tokens" toml:"tokens"`
}

type Webhook struct {
	URL    string `mapstructure:"url" toml:"url"`
	Secret string `mapstructure:"secret" toml:"secret"`
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot: repoRoot,
		DialUrl:  "ws://localhost:8545",
		ChainID:  1,
		Log: Log{
			Level:        "info",
			Filename:     "custodian.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
		Proposal: Proposal{
			SweepInterval: time.Minute,
		},
		Executor: Executor{
			Type: "mock",
			Tokens: map[string]string{
				"USDC": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				"USDT": "0xdAC17F958D2ee523a2206206994597C13D831ec7",
			},
		},
	}
}
