package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"musd/config"
	"musd/crypto"
	"musd/native/borrow"
	"musd/native/collateral"
	"musd/native/common"
	"musd/native/liquidation"
	"musd/native/oracle"
	"musd/native/token"
	"musd/observability/logging"
	"musd/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	useMemDB := flag.Bool("memdb", false, "DEV ONLY: keep all state in memory")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("musd-riskd", cfg.Environment)

	var db storage.Database
	if *useMemDB {
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
			os.Exit(1)
		}
	}
	defer db.Close()

	operatorKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		logger.Error("failed to generate operator key", "error", err)
		os.Exit(1)
	}
	operator := operatorKey.PubKey().Address()

	eng, err := wire(cfg, db, operator)
	if err != nil {
		logger.Error("failed to wire risk engines", "error", err)
		os.Exit(1)
	}
	logger.Info("risk engines wired",
		"operator", operator.String(),
		"assets", len(cfg.Assets),
		"listen", cfg.ListenAddress)

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newRouter(eng),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}

// engines bundles the wired risk modules for the HTTP surface.
type engines struct {
	operator    crypto.Address
	prices      *oracle.Router
	collateral  *collateral.Ledger
	debt        *borrow.Engine
	liquidation *liquidation.Engine
	token       *token.Ledger
	feeds       map[string]*oracle.ManualFeed
}

// wire constructs every module, installs the configured assets and links the
// module addresses into each other's permission sets.
func wire(cfg *config.Config, db storage.Database, operator crypto.Address) (*engines, error) {
	admin := common.NewAuthority(operator)
	pauses := common.NewPauseSet()

	tokenLedger := token.NewLedger()
	tokenLedger.SetState(token.NewStore(db))
	supplyCap, err := cfg.SupplyCap()
	if err != nil {
		return nil, err
	}
	if supplyCap != nil {
		if err := tokenLedger.SetSupplyCap(supplyCap); err != nil {
			return nil, err
		}
	}

	collateralLedger := collateral.NewLedger(admin)
	collateralLedger.SetState(collateral.NewStore(db))

	prices := oracle.NewRouter(admin)

	borrowAddr := crypto.MustModuleAddress("borrow")
	debt := borrow.NewEngine(borrowAddr, admin)
	debt.SetState(borrow.NewStore(db))
	debt.SetToken(tokenLedger.Minter(borrowAddr))
	debt.SetPriceRouter(prices)
	debt.SetCollateralLedger(collateralLedger)
	debt.SetPauses(pauses)

	liquidationAddr := crypto.MustModuleAddress("liquidation")
	liquidator := liquidation.NewEngine(liquidationAddr, admin)
	liquidator.SetDebtLedger(debt)
	liquidator.SetCollateralLedger(collateralLedger)
	liquidator.SetPriceRouter(prices)
	liquidator.SetToken(tokenLedger.Minter(liquidationAddr))

	tokenLedger.AuthorizeMinter(borrowAddr)
	tokenLedger.AuthorizeMinter(liquidationAddr)
	if err := collateralLedger.AuthorizeMover(operator, borrowAddr); err != nil {
		return nil, err
	}
	if err := collateralLedger.AuthorizeMover(operator, liquidationAddr); err != nil {
		return nil, err
	}
	if err := debt.AuthorizeLiquidator(operator, liquidationAddr); err != nil {
		return nil, err
	}

	if cfg.Debt.RateModel.Enabled {
		model := borrow.NewKinkedRateModel(
			cfg.Debt.RateModel.BaseBps,
			cfg.Debt.RateModel.Slope1Bps,
			cfg.Debt.RateModel.Slope2Bps,
			cfg.Debt.RateModel.KinkBps,
		)
		if err := debt.SetRateModel(operator, model); err != nil {
			return nil, err
		}
		if err := debt.SetSupplyCap(operator, supplyCap); err != nil {
			return nil, err
		}
	} else if err := debt.SetFixedRate(operator, cfg.Debt.FixedRateBps); err != nil {
		return nil, err
	}
	minDebt, err := cfg.MinDebt()
	if err != nil {
		return nil, err
	}
	if err := debt.SetMinDebt(operator, minDebt); err != nil {
		return nil, err
	}
	if err := debt.SetReserveShare(operator, cfg.Debt.ReserveShareBps); err != nil {
		return nil, err
	}
	if err := liquidator.SetCloseFactor(operator, cfg.Liquidation.CloseFactorBps); err != nil {
		return nil, err
	}
	if err := liquidator.SetFullLiquidationThreshold(operator, cfg.Liquidation.FullThresholdBps); err != nil {
		return nil, err
	}

	feeds := make(map[string]*oracle.ManualFeed, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		if err := collateralLedger.AddAsset(operator, collateral.AssetConfig{
			Symbol:                  asset.Symbol,
			Enabled:                 true,
			BorrowFactorBps:         asset.BorrowFactorBps,
			LiquidationThresholdBps: asset.LiquidationThresholdBps,
			LiquidationPenaltyBps:   asset.LiquidationPenaltyBps,
			Decimals:                asset.Decimals,
		}); err != nil {
			return nil, fmt.Errorf("add asset %s: %w", asset.Symbol, err)
		}

		feed := oracle.NewManualFeed()
		if asset.SeedPrice != "" {
			seed, ok := new(big.Int).SetString(asset.SeedPrice, 10)
			if !ok {
				return nil, fmt.Errorf("asset %s: invalid seed price %q", asset.Symbol, asset.SeedPrice)
			}
			feed.Set(seed, 0, time.Now())
		}
		maxAge := time.Duration(asset.MaxPriceAgeSeconds) * time.Second
		if err := prices.RegisterFeed(operator, asset.Symbol, feed, maxAge, asset.MaxDeviationBps); err != nil {
			return nil, fmt.Errorf("register feed %s: %w", asset.Symbol, err)
		}
		feeds[asset.Symbol] = feed
	}

	return &engines{
		operator:    operator,
		prices:      prices,
		collateral:  collateralLedger,
		debt:        debt,
		liquidation: liquidator,
		token:       tokenLedger,
		feeds:       feeds,
	}, nil
}
