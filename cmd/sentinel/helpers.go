package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/Veraticus/invoice-sentinel/internal/baseline"
	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/config"
	"github.com/Veraticus/invoice-sentinel/internal/engine"
	"github.com/Veraticus/invoice-sentinel/internal/metrics"
	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
	"github.com/Veraticus/invoice-sentinel/internal/storage"
)

// app bundles everything a command needs. Close releases it.
type app struct {
	settings  *config.Settings
	store     service.Storage
	baselines service.BaselineStore
	registry  *prometheus.Registry
	closers   []func() error
}

// openApp loads settings, opens and migrates the database, and connects the
// configured baseline store.
func openApp(ctx context.Context) (*app, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, settings.Database.Path)
	if err != nil {
		return nil, err
	}
	a := &app{
		settings: settings,
		store:    store,
		registry: prometheus.NewRegistry(),
		closers:  []func() error{store.Close},
	}

	if err := a.openBaselines(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// initStorage opens the SQLite database and applies pending migrations.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (a *app) openBaselines(ctx context.Context) error {
	switch a.settings.Baseline.Store {
	case config.StoreRedis:
		client, err := baseline.Dial(ctx, a.settings.Redis.URL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.baselines = baseline.NewRedisStore(client,
			baseline.WithKeyPrefix(a.settings.Redis.KeyPrefix),
			baseline.WithMaxAttempts(a.settings.Redis.MaxAttempts))
	case config.StoreMemory:
		// Seeded from the database; updates are not persisted.
		existing, err := a.store.ListBaselines(ctx)
		if err != nil {
			return err
		}
		mem := baseline.NewMemoryStore()
		mem.Load(existing)
		a.baselines = mem
	default:
		a.baselines = a.store
	}

	slog.Debug("Baseline store ready", "store", a.settings.Baseline.Store)
	return nil
}

// requireDurableBaselines refuses to record outcomes against the memory
// store: the outcome would persist but its baseline update would not.
func (a *app) requireDurableBaselines() error {
	if a.settings.Baseline.Store == config.StoreMemory {
		return common.NewUserError("Outcomes cannot be recorded with the memory baseline store. Use sqlite or redis.", common.ErrInvalidConfig)
	}
	return nil
}

// newEngine builds a fraud engine over the app's stores.
func (a *app) newEngine(workers int) (*engine.Engine, error) {
	cfg := a.settings.Engine
	if workers > 0 {
		cfg.Workers = workers
	}

	return engine.New(engine.Dependencies{
		History:   a.store,
		Baselines: a.baselines,
		Profiles:  a.store,
		Invoices:  a.store,
		Updater:   a.baselines,
		Outcomes:  a.store,
	}, cfg,
		engine.WithLogger(slog.Default()),
		engine.WithMetrics(metrics.New(a.registry)),
	)
}

// writeMetrics stores the collected metrics in the node exporter textfile
// format.
func (a *app) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(config.ExpandPath(path), a.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Close releases every open connection.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readInvoices reads a JSON invoice or an array of invoices from path, or
// from stdin when path is "-". Invoices without an ID get a random one.
func readInvoices(path string, stdin io.Reader) ([]model.InvoiceRecord, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(config.ExpandPath(path)) //nolint:gosec // user-provided input file
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoices: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no invoices in %s", path)
	}

	var invoices []model.InvoiceRecord
	if data[0] == '[' {
		err = json.Unmarshal(data, &invoices)
	} else {
		var inv model.InvoiceRecord
		err = json.Unmarshal(data, &inv)
		invoices = []model.InvoiceRecord{inv}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse invoices: %w", err)
	}

	for i := range invoices {
		if strings.TrimSpace(invoices[i].ID) == "" {
			invoices[i].ID = uuid.NewString()
		}
	}
	return invoices, nil
}

// resolveVendorKey accepts a vendor key ("id:..." or "name:...") or a plain
// vendor name.
func resolveVendorKey(vendor string) string {
	if strings.HasPrefix(vendor, "id:") || strings.HasPrefix(vendor, "name:") {
		return vendor
	}
	return model.VendorKeyFor("", vendor)
}
