package main

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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
	lifecycleadapter "github.com/aretw0/keel/pkg/adapters/lifecycle"
	"github.com/aretw0/keel/pkg/adapters/prom"
	"github.com/aretw0/keel/pkg/core"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		pattern     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-verify categories whenever their log files change",
		Long: `Watch follows the log directory and re-verifies a category every time its
file changes. Each failed verification is printed as one line. With
--metrics-addr, keel metrics are served at /metrics.`,
		Example: `  keel watch
  keel watch --pattern 'pay*' --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var extra []keel.Option
			var srv *http.Server
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				extra = append(extra, keel.WithObserver(prom.NewObserver(reg)))
				mux := http.NewServeMux()
				mux.Handle("/metrics", prom.Handler(reg))
				srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			}
			extra = append(extra, keel.WithMustExist(true), keel.WithWatcherErrorHandler(func(err error) {
				opts.logger.Error("watcher error", "error", err)
			}))

			eng, err := opts.open(extra...)
			if err != nil {
				return err
			}

			if srv != nil {
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						opts.logger.Error("metrics server failed", "addr", metricsAddr, "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				opts.logger.Info("serving metrics", "addr", metricsAddr)
			}

			events, err := eng.Log.Watch(ctx, pattern)
			if err != nil {
				return &exitError{code: exitCommandError, err: err}
			}
			src := lifecycleadapter.NewSource(events)
			if err := src.Start(ctx); err != nil {
				return &exitError{code: exitCommandError, err: err}
			}

			opts.logger.Info("watching", "root", eng.Root, "pattern", pattern)
			out := cmd.OutOrStdout()
			for e := range src.Events() {
				ie, ok := e.(core.IntegrityEvent)
				if !ok {
					continue
				}
				fmt.Fprintln(out, ie)
				for _, ce := range ie.Result.Errors {
					fmt.Fprintf(out, "  [%s] %s\n", ce.Kind, ce)
				}
				opts.logger.Warn("integrity check failed", "category", ie.Category, "errors", len(ie.Result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pattern, "pattern", "p", "*", "Glob selecting the categories to watch")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}
