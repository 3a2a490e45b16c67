package cmd

import (
	"context"
	"strconv"

	"subsidy-recon/adapters/source"
	"subsidy-recon/adapters/storage"
	"subsidy-recon/core/gateway"
	"subsidy-recon/core/reconcile"
	"subsidy-recon/internal/config"
	"subsidy-recon/internal/logging"
)

// app wires the configured source, gateway and pipeline for one command
type app struct {
	cfg     *config.Config
	gateway *gateway.Gateway
	service *reconcile.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src, err := source.Open(ctx, source.Options{
		Kind:            source.Kind(cfg.Source.Kind),
		SpreadsheetID:   cfg.Source.SpreadsheetID,
		CredentialsFile: cfg.Source.CredentialsFile,
		APIKey:          cfg.Source.APIKey,
		Dir:             cfg.Source.CSVDir,
	})
	if err != nil {
		return nil, err
	}

	carriers, err := cfg.ReconcileCarriers()
	if err != nil {
		return nil, err
	}

	namespace := cfg.Source.SpreadsheetID
	if namespace == "" {
		namespace = cfg.Source.CSVDir
	}

	gw := gateway.New(cfg.GatewaySettings(), logging.Component("gateway"))
	pipeline := reconcile.New(gw.Tables(src, namespace), carriers,
		reconcile.WithLogger(logging.Component("reconcile")),
		reconcile.WithMissThrottle(logging.NewThrottle(cfg.MissLogCooldown())),
		reconcile.WithParallelism(cfg.Parallelism),
	)

	return &app{
		cfg:     cfg,
		gateway: gw,
		service: reconcile.NewService(pipeline),
	}, nil
}

// close waits for background refreshes so the process exits cleanly
func (a *app) close() {
	a.gateway.Wait()
}

func openStore(cfg *config.Config) (storage.Store, error) {
	return storage.StoreFactory(storage.Backend(cfg.Store.Backend), map[string]string{
		"path":    cfg.Store.Path,
		"dsn":     cfg.Store.DSN,
		"retries": strconv.Itoa(cfg.Store.Retries),
	})
}
