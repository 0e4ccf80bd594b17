// Package health serves liveness and readiness over HTTP and gRPC.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is satisfied by *sql.DB and *database.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Checker reports whether dependencies are reachable. Redis is optional.
type Checker struct {
	db      Pinger
	rdb     *redis.Client
	timeout time.Duration
}

func NewChecker(db Pinger, rdb *redis.Client) *Checker {
	return &Checker{db: db, rdb: rdb, timeout: time.Second}
}

// Ready pings the database and, when configured, redis.
func (c *Checker) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db not ready: %w", err)
	}
	if c.rdb != nil {
		if err := c.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis not ready: %w", err)
		}
	}
	return nil
}

// Handler serves /healthz and /readyz.
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// GRPCService mirrors readiness into the standard grpc.health.v1 service.
type GRPCService struct {
	checker *Checker
	server  *grpchealth.Server
	logger  *zerolog.Logger
}

func NewGRPCService(checker *Checker, logger *zerolog.Logger) *GRPCService {
	return &GRPCService{checker: checker, server: grpchealth.NewServer(), logger: logger}
}

// Refresh runs one readiness check and updates the overall serving status.
func (g *GRPCService) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := g.checker.Ready(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if g.logger != nil {
			g.logger.Warn().Err(err).Msg("readiness check failed")
		}
	}
	g.server.SetServingStatus("", status)
	return status
}

// Server exposes the underlying health server for in-process checks.
func (g *GRPCService) Server() healthpb.HealthServer {
	return g.server
}

// Serve listens on addr until ctx is done, refreshing status every interval.
func (g *GRPCService) Serve(ctx context.Context, addr string, interval time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, g.server)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		g.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				g.server.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				g.Refresh(ctx)
			}
		}
	}()

	if g.logger != nil {
		g.logger.Info().Str("addr", addr).Msg("gRPC health server listening")
	}
	if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}
