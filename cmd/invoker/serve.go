package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/sam-e/fabric/internal/apisource"
	"github.com/sam-e/fabric/internal/bussource"
	"github.com/sam-e/fabric/internal/config"
	"github.com/sam-e/fabric/internal/invoker"
	"github.com/sam-e/fabric/internal/logging"
	"github.com/sam-e/fabric/internal/metrics"
	"github.com/sam-e/fabric/internal/observability"
	"github.com/sam-e/fabric/internal/queuesource"
	"github.com/sam-e/fabric/internal/s3source"
	"github.com/sam-e/fabric/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		templates    []string
		queueBackend string
		redisAddr    string
		tracingAddr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the invoker and every event source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(templates) > 0 {
				os.Setenv("SAM_TEMPLATE", strings.Join(templates, ":"))
			}

			opts := config.LoadRuntimeOptionsFromEnv()
			logging.InitStructured(opts.LogFormat, opts.LogLevel)

			graph, err := config.LoadGraphFromEnv()
			if err != nil {
				return fmt.Errorf("load resource graph: %w", err)
			}
			for _, w := range graph.Warnings() {
				logging.Op().Warn("template warning", "resource", w.Resource, "reason", w.Reason)
			}

			ctx := context.Background()
			if err := observability.Init(ctx, observability.Config{
				Enabled:     tracingAddr != "",
				Exporter:    "otlp-http",
				Endpoint:    tracingAddr,
				ServiceName: "sam-e-fabric",
				SampleRate:  1.0,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(ctx)

			st := store.New()
			stop := make(chan struct{})
			go st.RunRetentionSweep(stop, 30*time.Second, opts.RetentionDuration())

			backend, err := newQueueBackend(ctx, queueBackend, redisAddr)
			if err != nil {
				return fmt.Errorf("init queue backend: %w", err)
			}
			if queueBackend == "redis" {
				// Mirror queue depth into the same Redis server for an
				// external dashboard; the in-memory store stays
				// authoritative.
				st.SetMirror(store.NewRedisDepthMirror(redis.NewClient(&redis.Options{Addr: redisAddr})))
			}

			inv := invoker.New(graph, st, opts.InvokeTimeout())
			api := apisource.New(graph, "http://127.0.0.1"+opts.InvokerAddr)
			queues := queuesource.New(graph, backend, "http://127.0.0.1"+opts.InvokerAddr)
			bus := bussource.New(graph, backend)
			s3 := s3source.New(graph, backend)

			servers := []*http.Server{
				{Addr: opts.InvokerAddr, Handler: inv.NewServeMux()},
				{Addr: opts.APIAddr, Handler: observability.HTTPMiddleware(api.Handler())},
				{Addr: opts.BusAddr, Handler: observability.HTTPMiddleware(bus.Handler())},
				{Addr: opts.S3Addr, Handler: observability.HTTPMiddleware(s3.Handler())},
			}
			if opts.MetricsAddr != "" {
				metricsMux := http.NewServeMux()
				metricsMux.Handle("/metrics", metrics.Handler())
				servers = append(servers, &http.Server{Addr: opts.MetricsAddr, Handler: metricsMux})
			}

			for _, srv := range servers {
				srv := srv
				go func() {
					logging.Op().Info("listening", "addr", srv.Addr)
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("listener failed", "addr", srv.Addr, "error", err)
					}
				}()
			}

			go queues.RunAll(ctx, stop)
			go bus.RunMatcher(ctx, stop)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutting down")
			close(stop)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, srv := range servers {
				srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&templates, "template", nil, "SAM/CloudFormation template path (repeatable)")
	cmd.Flags().StringVar(&queueBackend, "queue-backend", "sqs", "Queue backend: sqs or redis")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address, used when --queue-backend=redis")
	cmd.Flags().StringVar(&tracingAddr, "otlp-endpoint", "", "OTLP/HTTP trace collector endpoint (enables tracing if set)")

	return cmd
}

func newQueueBackend(ctx context.Context, kind, redisAddr string) (queuesource.Backend, error) {
	switch kind {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return queuesource.NewRedisListBackend(client), nil
	case "sqs", "":
		return queuesource.NewSQSBackend(ctx)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", kind)
	}
}
