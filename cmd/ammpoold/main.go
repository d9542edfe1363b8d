package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ammpool/config"
	"ammpool/core/events"
	"ammpool/core/state"
	"ammpool/crypto"
	"ammpool/native/amm"
	"ammpool/native/token"
	"ammpool/observability/logging"
	"ammpool/rpc"
	"ammpool/storage"
)

// custodySeed derives the deterministic custodian account that holds pooled
// funds. There is no private key for this account; only the engine moves its
// balance.
const custodySeed = "ammpool/custody/v1"

func custodyAddress() [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte(custodySeed))
	copy(addr[:], hash[12:])
	return addr
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	flag.Parse()

	env := os.Getenv("AMMPOOL_ENV")
	logger := logging.Setup("ammpoold", env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)

	ownerKey, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, os.Getenv("AMMPOOL_OWNER_PASS"))
	if err != nil {
		logger.Error("failed to load owner keystore", "path", cfg.OwnerKeystorePath, "error", err)
		os.Exit(1)
	}
	var owner [20]byte
	copy(owner[:], ownerKey.PubKey().Address().Bytes())

	if err := bootstrapTokens(manager, owner, cfg); err != nil {
		logger.Error("failed to bootstrap tokens", "error", err)
		os.Exit(1)
	}

	ledger := token.NewLedger(manager)
	custody := token.NewCustodyClient(ledger, custodyAddress())

	recorder := events.NewRecorder()
	engine := amm.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(custody)
	engine.SetEmitter(recorder)

	if _, err := engine.Pool(); errors.Is(err, amm.ErrPoolNotFound) {
		if _, err := engine.CreatePool(owner, cfg.TokenA.Symbol, cfg.TokenB.Symbol); err != nil {
			logger.Error("failed to create pool", "error", err)
			os.Exit(1)
		}
		logger.Info("pool created",
			"tokenA", cfg.TokenA.Symbol,
			"tokenB", cfg.TokenB.Symbol,
			"owner", ownerKey.PubKey().Address().String(),
		)
	} else if err != nil {
		logger.Error("failed to inspect pool state", "error", err)
		os.Exit(1)
	}

	if cfg.MetricsAddress != "" {
		go serveMetrics(logger, cfg.MetricsAddress)
	}

	server := rpc.NewServer(engine, ledger)
	logger.Info("rpc server listening", "address", cfg.RPCAddress)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}

// bootstrapTokens registers the two pool assets on first run and mints their
// initial supply to the owner. Re-running against existing state is a no-op.
func bootstrapTokens(manager *state.Manager, owner [20]byte, cfg *config.Config) error {
	ledger := token.NewLedger(manager)
	for _, tc := range []config.TokenConfig{cfg.TokenA, cfg.TokenB} {
		if !manager.TokenExists(tc.Symbol) {
			if err := manager.RegisterToken(tc.Symbol, tc.Name, tc.Decimals); err != nil {
				return err
			}
			if err := manager.SetTokenMintAuthority(tc.Symbol, owner[:]); err != nil {
				return err
			}
		}
		supply, err := ledger.TotalSupply(tc.Symbol)
		if err != nil {
			return err
		}
		if !supply.IsZero() || tc.InitialSupply == "" {
			continue
		}
		initial, err := uint256.FromDecimal(tc.InitialSupply)
		if err != nil {
			return err
		}
		if err := ledger.Mint(owner, owner, tc.Symbol, initial); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics server listening", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
