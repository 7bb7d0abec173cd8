package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/config"
	bookingsapi "github.com/Domenick1991/skybooking/internal/api/bookings_service_api"
	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const shutdownTimeout = 5 * time.Second

type Servers struct {
	grpcServer *grpc.Server
	grpcConn   *grpc.ClientConn
	httpServer *http.Server
}

// Run serves the REST API, the ops gRPC service and its JSON gateway until
// ctx is cancelled or one of the servers fails. opsGuard, when set, runs in
// front of every gateway route.
func Run(ctx context.Context, cfg *config.Config, router *gin.Engine, bookings bookingsapi.Bookings, opsGuard gin.HandlerFunc, log logrus.FieldLogger) error {
	s, err := newServers(cfg, router, bookings, opsGuard, log)
	if err != nil {
		return err
	}
	defer s.grpcConn.Close()

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("address", cfg.GRPC.Address).Info("gRPC server started")
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("address", cfg.HTTP.Address).Info("HTTP server started")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func newServers(cfg *config.Config, router *gin.Engine, bookings bookingsapi.Bookings, opsGuard gin.HandlerFunc, log logrus.FieldLogger) (*Servers, error) {
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(log)))
	bookingsapi.Register(grpcSrv, bookingsapi.NewServer(bookings))

	conn, err := grpc.NewClient(dialTarget(cfg.GRPC.Address), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial gRPC %s: %w", cfg.GRPC.Address, err)
	}

	gateway := runtime.NewServeMux()
	if err := bookingsapi.RegisterGateway(gateway, bookingsapi.NewClient(conn), log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register bookings gateway: %w", err)
	}
	ops := router.Group("/v1")
	if opsGuard != nil {
		ops.Use(opsGuard)
	}
	ops.Any("/*path", gin.WrapH(gateway))

	if cfg.HTTP.SwaggerDir != "" {
		router.StaticFS("/swagger", http.Dir(cfg.HTTP.SwaggerDir))
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/ops.swagger.json"))))
	}

	return &Servers{
		grpcServer: grpcSrv,
		grpcConn:   conn,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func loggingInterceptor(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := log.WithField("method", info.FullMethod).WithField("duration", time.Since(start).String())
		if err != nil {
			entry.WithError(err).Warn("gRPC call failed")
			return resp, err
		}
		entry.Debug("gRPC call completed")
		return resp, nil
	}
}

// dialTarget turns a listen address such as ":9090" into one a client can dial.
func dialTarget(address string) string {
	if strings.HasPrefix(address, ":") {
		return "localhost" + address
	}
	return address
}
