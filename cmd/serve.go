package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/escalate"
	"github.com/sells-group/market-scanner/internal/monitoring"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Scan on a schedule and expose the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		promReg := prometheus.NewRegistry()
		recorder := monitoring.NewRecorder(promReg)

		runOnce := func() {
			result, err := env.Pipeline.Run(ctx)
			if err != nil {
				if eris.Is(err, pipeline.ErrRunInFlight) {
					zap.L().Debug("scan tick skipped, run in flight")
					return
				}
				zap.L().Error("scheduled scan failed", zap.Error(err))
				return
			}
			recorder.ObserveRun(result)
			if err := env.Store.SaveRun(ctx, result); err != nil {
				zap.L().Error("persist run", zap.String("run_id", result.RunID), zap.Error(err))
			} else if err := env.Store.LogEdges(ctx, result.RunID, result.StartedAt, result.Edges); err != nil {
				zap.L().Error("log edges", zap.String("run_id", result.RunID), zap.Error(err))
			}
			zap.L().Info("scan complete",
				zap.String("run_id", result.RunID),
				zap.Int("markets", result.Stats.MarketCount),
				zap.Int("edges", len(result.Edges)),
				zap.Int("errors", len(result.Errors)),
			)
		}

		// Scheduler: one scan immediately, then every interval. Ticks that
		// land while a run is still going are skipped, not queued.
		go func() {
			runOnce()
			ticker := time.NewTicker(secs(cfg.Serve.IntervalSecs))
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					runOnce()
				}
			}
		}()

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		var cooldowns escalate.CooldownStore
		if env.Escalator != nil {
			cooldowns = env.Escalator.Cooldowns()
		}

		deps := apiDeps{
			store:     env.Store,
			cache:     env.Cache,
			breakers:  env.Breakers,
			cooldowns: cooldowns,
			metrics:   promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
			started:   time.Now(),
			scan: func() bool {
				if env.Pipeline.Running() {
					return false
				}
				go runOnce()
				return true
			},
		}

		port := servePort
		if port == 0 {
			port = cfg.Serve.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(deps),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Int("interval_secs", cfg.Serve.IntervalSecs),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
