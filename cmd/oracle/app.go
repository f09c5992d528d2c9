package main

import (
	"fmt"
	"time"

	"auction-oracle/internal/blockchain"
	"auction-oracle/internal/config"
	"auction-oracle/internal/gate"
	"auction-oracle/internal/logger"
	"auction-oracle/internal/metrics"
	"auction-oracle/internal/room"
	"auction-oracle/internal/storage"
	"auction-oracle/internal/tracker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tonkeeper/tonapi-go"
	"go.uber.org/zap"
)

const testnetTonAPIURL = "https://testnet.tonapi.io"

// app holds the collaborators shared by the commands. Fields are built
// lazily so read-only commands never connect a wallet.
type app struct {
	config   *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	storage  *storage.GormStorage
	chain    *blockchain.Client
}

func newApp(c *config.Config) (*app, error) {
	store, err := storage.Open(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	return &app{
		config:   c,
		registry: registry,
		metrics:  metrics.New(registry),
		storage:  store,
	}, nil
}

func (a *app) Close() {
	if err := a.storage.Close(); err != nil {
		logger.Warn("close storage failed", zap.Error(err))
	}
}

func (a *app) chainClient() (*blockchain.Client, error) {
	if a.chain != nil {
		return a.chain, nil
	}
	if err := a.config.Validate(); err != nil {
		return nil, err
	}

	url := tonapi.TonApiURL
	if a.config.Network == config.NetworkTestnet {
		url = testnetTonAPIURL
	}

	api, err := tonapi.NewClient(url, tonapi.WithToken(a.config.TonAPIToken))
	if err != nil {
		return nil, fmt.Errorf("create tonapi client: %w", err)
	}

	client, err := blockchain.NewClient(api, a.config.AuctionContractAddress, a.config.NFTCollectionAddress, a.config.ChainTimeout)
	if err != nil {
		return nil, err
	}
	a.chain = client
	return client, nil
}

func (a *app) tracker() (*tracker.Tracker, error) {
	chain, err := a.chainClient()
	if err != nil {
		return nil, err
	}
	if a.config.WalletMnemonic == "" {
		return nil, fmt.Errorf("%w: WALLET_MNEMONIC", config.ErrMissingSetting)
	}

	wallet, err := blockchain.NewOracleWallet(blockchain.WalletConfiguration{
		Mnemonic:       a.config.WalletMnemonic,
		Version:        a.config.WalletVersion,
		Testnet:        a.config.Network == config.NetworkTestnet,
		MessageAmount:  a.config.MessageAmount,
		ConfirmTimeout: a.config.TxConfirmTimeout,
	}, chain)
	if err != nil {
		return nil, fmt.Errorf("create oracle wallet: %w", err)
	}

	key, err := a.config.RoomSigningKey()
	if err != nil {
		return nil, err
	}
	rooms, err := room.NewJitsiProvisioner(room.Configuration{
		Domain:        a.config.JitsiDomain,
		AppID:         a.config.JitsiAppID,
		KeyID:         a.config.JitsiKeyID,
		PrivateKeyPEM: key,
	})
	if err != nil {
		return nil, err
	}

	return tracker.NewTracker(chain, wallet, rooms, a.storage, a.storage, a.metrics, tracker.Configuration{
		ScanInterval:           a.config.ScanInterval,
		InitialScanDelay:       a.config.InitialScanDelay,
		ScanConcurrency:        a.config.ScanConcurrency,
		ChainTimeout:           a.config.ChainTimeout,
		TxConfirmTimeout:       a.config.TxConfirmTimeout,
		DefaultMeetingDuration: a.config.DefaultMeetingDuration,
	}), nil
}

func (a *app) gate() (*gate.Gate, error) {
	chain, err := a.chainClient()
	if err != nil {
		return nil, err
	}

	// gate passes are signed only when the oracle mnemonic is configured
	var signer gate.Signer
	if a.config.WalletMnemonic != "" {
		payloadSigner, err := blockchain.NewPayloadSigner(a.config.WalletMnemonic)
		if err != nil {
			return nil, err
		}
		signer = payloadSigner
	}

	return gate.NewGate(chain, blockchain.NewBurnEventVerifier(chain.AuctionAddress()), a.storage, signer, a.metrics, gate.Configuration{
		ChainTimeout: a.config.ChainTimeout,
		GatePassTTL:  a.config.GatePassTTL,
	}), nil
}

func cleanupInterval(c *config.Config) time.Duration {
	if c.GatePassCleanupInterval <= 0 {
		return time.Hour
	}
	return c.GatePassCleanupInterval
}
