package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

var ErrMissingSetting = errors.New("missing required setting")

// Config is assembled from defaults, an optional YAML file and the
// environment, in that order of precedence.
type Config struct {
	LogLevel     string `yaml:"logLevel" envconfig:"LOG_LEVEL"`
	LogFile      string `yaml:"logFile" envconfig:"LOG_FILE"`
	LogErrorFile string `yaml:"logErrorFile" envconfig:"LOG_ERROR_FILE"`
	LogConsole   bool   `yaml:"logConsole" envconfig:"LOG_CONSOLE"`

	DatabaseDSN string `yaml:"databaseDsn" envconfig:"DATABASE_DSN"`

	Network                string `yaml:"network" envconfig:"TON_NETWORK"`
	TonAPIToken            string `yaml:"tonapiToken" envconfig:"TONAPI_TOKEN"`
	WalletMnemonic         string `yaml:"-" envconfig:"WALLET_MNEMONIC"`
	WalletVersion          string `yaml:"walletVersion" envconfig:"WALLET_VERSION"`
	AuctionContractAddress string `yaml:"auctionContractAddress" envconfig:"AUCTION_CONTRACT_ADDRESS"`
	NFTCollectionAddress   string `yaml:"nftCollectionAddress" envconfig:"NFT_COLLECTION_ADDRESS"`
	MessageAmount          uint64 `yaml:"messageAmount" envconfig:"MESSAGE_AMOUNT"`

	ScanInterval     time.Duration `yaml:"scanInterval" envconfig:"SCAN_INTERVAL"`
	InitialScanDelay time.Duration `yaml:"initialScanDelay" envconfig:"INITIAL_SCAN_DELAY"`
	ScanConcurrency  int           `yaml:"scanConcurrency" envconfig:"SCAN_CONCURRENCY"`
	ChainTimeout     time.Duration `yaml:"chainTimeout" envconfig:"CHAIN_TIMEOUT"`
	TxConfirmTimeout time.Duration `yaml:"txConfirmTimeout" envconfig:"TX_CONFIRM_TIMEOUT"`

	JitsiDomain            string `yaml:"jitsiDomain" envconfig:"JITSI_DOMAIN"`
	JitsiAppID             string `yaml:"jitsiAppId" envconfig:"JITSI_APP_ID"`
	JitsiKeyID             string `yaml:"jitsiKeyId" envconfig:"JITSI_KID"`
	JitsiPrivateKey        string `yaml:"-" envconfig:"JITSI_PRIVATE_KEY"`
	JitsiPrivateKeyFile    string `yaml:"jitsiPrivateKeyFile" envconfig:"JITSI_PRIVATE_KEY_FILE"`
	DefaultMeetingDuration int    `yaml:"defaultMeetingDuration" envconfig:"DEFAULT_MEETING_DURATION"`

	GatePassTTL             time.Duration `yaml:"gatePassTtl" envconfig:"GATE_PASS_TTL"`
	GatePassCleanupInterval time.Duration `yaml:"gatePassCleanupInterval" envconfig:"GATE_PASS_CLEANUP_INTERVAL"`

	MetricsAddress string `yaml:"metricsAddress" envconfig:"METRICS_ADDRESS"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:                "info",
		LogConsole:              true,
		DatabaseDSN:             "persistent.db",
		Network:                 NetworkMainnet,
		WalletVersion:           "V4R2",
		MessageAmount:           50_000_000,
		ScanInterval:            2 * time.Minute,
		InitialScanDelay:        5 * time.Second,
		ScanConcurrency:         4,
		ChainTimeout:            30 * time.Second,
		TxConfirmTimeout:        90 * time.Second,
		JitsiDomain:             "8x8.vc",
		JitsiAppID:              "meeting-app",
		DefaultMeetingDuration:  60,
		GatePassTTL:             24 * time.Hour,
		GatePassCleanupInterval: time.Hour,
		MetricsAddress:          ":9090",
	}
}

// Load reads .env (if present), then the YAML file at path (if any), then
// applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.Network = strings.ToLower(cfg.Network)
	return cfg, nil
}

// Validate checks the settings every chain-facing command needs.
func (c *Config) Validate() error {
	if c.AuctionContractAddress == "" {
		return fmt.Errorf("%w: AUCTION_CONTRACT_ADDRESS", ErrMissingSetting)
	}
	if c.Network != NetworkMainnet && c.Network != NetworkTestnet {
		return fmt.Errorf("unknown TON_NETWORK %q", c.Network)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %s", c.ScanInterval)
	}
	if c.ScanConcurrency < 1 {
		c.ScanConcurrency = 1
	}
	if c.DefaultMeetingDuration <= 0 {
		c.DefaultMeetingDuration = 60
	}
	return nil
}

// RoomSigningKey returns the PEM encoded JaaS private key, preferring the
// inline value over the key file.
func (c *Config) RoomSigningKey() ([]byte, error) {
	if c.JitsiPrivateKey != "" {
		return []byte(strings.ReplaceAll(c.JitsiPrivateKey, `\n`, "\n")), nil
	}
	if c.JitsiPrivateKeyFile == "" {
		return nil, fmt.Errorf("%w: JITSI_PRIVATE_KEY or JITSI_PRIVATE_KEY_FILE", ErrMissingSetting)
	}
	return os.ReadFile(c.JitsiPrivateKeyFile)
}
