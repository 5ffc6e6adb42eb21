package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/broker/alpaca"
	"github.com/rustyeddy/autotrader/broker/sim"
	"github.com/rustyeddy/autotrader/engine"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/rules"
)

// openJournal opens the SQLite journal at the configured path.
func openJournal() (*journal.SQLite, error) {
	store, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return store, nil
}

// newConnector builds the configured broker connector. Alpaca credentials
// come from the environment (APCA_API_KEY_ID / APCA_API_SECRET_KEY), loaded
// from .env when present.
func newConnector() (broker.Connector, error) {
	switch cfg.Broker.Type {
	case "alpaca":
		key := os.Getenv("APCA_API_KEY_ID")
		secret := os.Getenv("APCA_API_SECRET_KEY")
		if key == "" || secret == "" {
			return nil, fmt.Errorf("alpaca broker requires APCA_API_KEY_ID and APCA_API_SECRET_KEY")
		}
		return alpaca.New(key, secret, cfg.Broker.BaseURL), nil
	case "sim":
		return sim.New(), nil
	default:
		return nil, fmt.Errorf("unknown broker type %q", cfg.Broker.Type)
	}
}

// newEngine wires journal, connector, price cache and the rules library into
// a ready Engine. The caller owns closing the returned journal.
func newEngine() (*engine.Engine, *journal.SQLite, error) {
	store, err := openJournal()
	if err != nil {
		return nil, nil, err
	}

	connector, err := newConnector()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	library, err := rules.LoadDir(cfg.Engine.RulesDir)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}

	ttl, _ := cfg.Engine.ParsePriceTTL()
	lockTimeout, _ := cfg.Engine.ParseLockTimeout()

	eng := engine.New(store, connector, market.NewCache(connector, ttl), library, engine.Options{
		Account:     cfg.Engine.Account,
		LockTimeout: lockTimeout,
		Log:         slog.Default(),
	})
	return eng, store, nil
}
