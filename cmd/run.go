package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"reel-scout/auth"
	"reel-scout/logger"
	"reel-scout/metrics"
	"reel-scout/models"
	"reel-scout/orchestrator"
	"reel-scout/reports"
	"reel-scout/scanner"
	"reel-scout/scraper"
	"reel-scout/services"
)

type runOptions struct {
	sessionID   string
	side        string
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent for one session until its budget ends or it is suspended",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&opts.side, "side", "", "run one side phase instead of the main cycle (feed_ads or target_app)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func runAgent(ctx context.Context, opts runOptions) error {
	var side models.Phase
	if opts.side != "" {
		p, err := models.ParsePhase(opts.side)
		if err != nil {
			return err
		}
		if !p.IsSide() {
			return fmt.Errorf("--side must be %s or %s", models.PhaseFeedAds, models.PhaseTargetApp)
		}
		side = p
	}

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	log := e.log.With(logger.String("session_id", opts.sessionID))

	session, err := e.repo.GetSession(ctx, opts.sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", opts.sessionID, err)
	}
	if session.AccountID == nil {
		return fmt.Errorf("session %s has no account", session.ID)
	}
	sealer, err := auth.NewSealer(e.cfg.Credentials.Key)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, reg, log)
		defer shutdown(srv, log)
	}

	b := e.cfg.Browser
	page, err := scraper.NewChromePage(scraper.ChromeOptions{
		Headless:          b.Headless,
		Proxy:             b.Proxy,
		Width:             b.WindowWidth,
		Height:            b.WindowHeight,
		NavigationTimeout: b.NavigationTimeout,
		Endpoints:         b.Endpoints,
	}, log)
	if err != nil {
		return err
	}
	defer page.Close()

	cls := e.classifier(m)
	vt := services.NewVirusTotal(e.cfg.VirusTotal.APIKey)
	sc := scanner.New(page, cls, vt, e.repo, scanner.Options{
		Settle:       e.cfg.Agent.ScanSettle,
		PreviewChars: e.cfg.Agent.BodyPreviewChars,
	}, log)

	orch, err := orchestrator.New(ctx, session, orchestrator.Deps{
		Page:       page,
		Store:      e.repo,
		Classifier: cls,
		Scanner:    sc,
		Auth:       auth.NewFeedLogin(e.repo, sealer, *session.AccountID, page, b.BaseURL, log),
		Notifier:   reports.NewSlackNotifier(e.cfg.Slack.WebhookURL, log),
		Metrics:    m,
		Log:        e.log,
	}, orchestrator.Options{
		Agent:     e.cfg.Agent,
		BaseURL:   b.BaseURL,
		Endpoints: b.Endpoints,
	})
	if err != nil {
		return err
	}

	if side != "" {
		err = orch.RunSide(ctx, side)
	} else {
		err = orch.Run(ctx)
	}
	switch {
	case errors.Is(err, models.ErrSessionSuspended):
		log.Warn("session suspended", logger.Error(err))
		return err
	case errors.Is(err, context.Canceled):
		log.Info("agent interrupted, checkpoint saved")
		return nil
	case err != nil:
		return err
	}
	final := orch.Session()
	log.Info("agent finished",
		logger.String("phase", string(final.Phase)),
		logger.Int("reels_seen", final.ReelsSeen),
		logger.Int("relevant_reels_seen", final.RelevantReelsSeen),
	)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", logger.Error(err))
		}
	}()
	return srv
}

func shutdown(srv *http.Server, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("server shutdown failed", logger.Error(err))
	}
}
