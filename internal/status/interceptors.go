package status

import (
	"context"

	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const missionIDMetadataKey = "x-mission-id"

// LoggerUnaryServerInterceptor attaches a per-request logger annotated with
// the method and, when the caller sends one, the mission_id it asks about.
func LoggerUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		reqLog := base.With(logging.String("method", info.FullMethod))
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if incoming := firstHeader(md, missionIDMetadataKey); incoming != "" {
				ctx = logging.ContextWithMissionID(ctx, incoming)
				reqLog = reqLog.With(logging.String("mission_id", incoming))
			}
		}
		ctx = logging.ContextWithLogger(ctx, reqLog)

		return handler(ctx, req)
	}
}

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
