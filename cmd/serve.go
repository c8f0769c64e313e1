package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"reel-scout/api"
	"reel-scout/auth"
	"reel-scout/logger"
	"reel-scout/metrics"
	"reel-scout/registry"
	"reel-scout/services"
	"reel-scout/supervisor"
)

const adminUsername = "admin"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the operator API and supervise agent processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cfg.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret (JWT_SECRET) is required")
	}
	authSvc := auth.NewService(e.repo, e.cfg.Admin.JWTSecret)
	created, err := authSvc.SeedAdmin(ctx, adminUsername, e.cfg.Admin.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		e.log.Info("admin user created", logger.String("username", adminUsername))
	}

	client, err := registry.NewClient(ctx, e.cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own binary: %w", err)
	}
	var extra []string
	if cfgFile != "" {
		extra = []string{"--config", cfgFile}
	}
	sup := supervisor.New(registry.New(client), exe, extra, e.log)
	if pruned, err := sup.Prune(ctx); err != nil {
		e.log.Warn("failed to prune registry", logger.Error(err))
	} else if len(pruned) > 0 {
		e.log.Info("pruned dead agents", logger.Strings("session_ids", pruned))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	prov, err := e.provisioner(m)
	if err != nil {
		return err
	}

	srv := api.NewServer(e.repo, prov, sup, authSvc, prometheus.DefaultGatherer, e.log).
		WithDomainLookup(services.NewWhois(e.cfg.Whois.APIKey))
	httpSrv := &http.Server{
		Addr:              e.cfg.Admin.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("operator API listening", logger.String("addr", e.cfg.Admin.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdown(httpSrv, e.log)
		return nil
	}
}
