package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// HealthServiceName — имя сервиса в grpc.health.v1 для балансировщиков и k8s.
const HealthServiceName = "taskgate.Dispatcher"

// NewGRPCServer поднимает gRPC сервер с health-сервисом. Изначально NOT_SERVING:
// MarkServing вызывается, когда кэш правил прогрет.
func NewGRPCServer(logger *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryTraceInterceptor(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return srv, hs
}

func MarkServing(hs *health.Server) {
	hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_SERVING)
}

// UnaryTraceInterceptor достает Trace-ID из метаданных (или генерирует) и логирует вызов.
func UnaryTraceInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	log := logger.Named("grpc")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		traceID := ""
		// В gRPC заголовки обычно в нижнем регистре
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-trace-id"); len(ids) > 0 {
				traceID = ids[0]
			}
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		start := time.Now()
		resp, err := handler(infra.WithTraceID(ctx, traceID), req)
		log.Debug("unary call",
			zap.String("method", info.FullMethod),
			zap.String("trace_id", traceID),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return resp, err
	}
}
