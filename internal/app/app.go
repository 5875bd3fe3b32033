package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/cloudevents"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/config"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/diagnosis"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/gateway"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/handlers"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/httpclient"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/store"
)

const shutdownTimeout = 30 * time.Second

// Runtime holds everything built once at startup and shared by all requests.
type Runtime struct {
	cfg     config.Config
	metrics *metrics.Registry
	gateway *gateway.Gateway
	store   store.Store
	handler http.Handler
	health  *health.Server
}

func NewRuntime(ctx context.Context, cfg config.Config) (*Runtime, error) {
	reg := metrics.NewRegistry()

	endpoint := cfg.Function.Endpoint()
	gw := gateway.New(gateway.Options{
		Endpoint:         endpoint,
		HTTPClient:       httpclient.New(httpclient.Options{Timeout: cfg.Gateway.Timeout}),
		Timeout:          cfg.Gateway.Timeout,
		TransportRetries: cfg.Gateway.TransportRetries,
		Metrics:          reg,
	})

	st, err := store.Open(ctx, cfg.Store, reg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	ceClient, err := cloudevents.NewClient(cfg.Events.SinkURL, cfg.Events.SourceID, cfg.Events.EventType)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	svc := diagnosis.NewService(st, diagnosis.SystemRandom{}, ceClient, reg)

	log.Info().
		Str("variant", cfg.Function.Variant).
		Str("mode", string(endpoint.Mode)).
		Str("inference_url", gw.URL()).
		Str("store", cfg.Store.Driver).
		Msg("runtime initialized")

	return &Runtime{
		cfg:     cfg,
		metrics: reg,
		gateway: gw,
		store:   st,
		handler: handlers.NewRouter(handlers.Routes{
			Variant:      cfg.Function.Variant,
			Orchestrator: handlers.NewOrchestratorHandler(gw),
			Mock:         handlers.NewMockHandler(svc),
			Metrics:      reg,
		}),
		health: health.NewServer(),
	}, nil
}

func (rt *Runtime) Handler() http.Handler {
	return rt.handler
}

func (rt *Runtime) Metrics() *metrics.Registry {
	return rt.metrics
}

// Run serves HTTP and gRPC health until ctx is canceled or a server fails,
// then shuts both down gracefully.
func (rt *Runtime) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", ":"+rt.cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", ":"+rt.cfg.Server.GRPCPort)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	return rt.Serve(ctx, httpLis, grpcLis)
}

func (rt *Runtime) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	server := &http.Server{
		Handler:      rt.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: rt.cfg.Gateway.Timeout*time.Duration(rt.cfg.Gateway.TransportRetries+1) + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, rt.health)
	rt.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpLis.Addr().String()).Msg("starting HTTP server")
		if err := server.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", grpcLis.Addr().String()).Msg("starting gRPC health server")
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down servers")
		rt.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (rt *Runtime) Close() error {
	return rt.store.Close()
}
