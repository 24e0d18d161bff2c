package api

import (
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tcfw/tributary/internal/utils/logging"
)

func newGRPCServer() *grpc.Server {
	recovery := grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
		logging.Entry().WithField("panic", p).Error("recovered api panic")
		return status.Errorf(codes.Internal, "internal error")
	})

	streamInterceptors := []grpc.StreamServerInterceptor{
		grpc_recovery.StreamServerInterceptor(recovery),
	}
	unaryInterceptors := []grpc.UnaryServerInterceptor{
		grpc_recovery.UnaryServerInterceptor(recovery),
	}

	return grpc.NewServer(
		grpc.ForceServerCodec(msgpackCodec{}),
		grpc.ChainStreamInterceptor(streamInterceptors...),
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
	)
}
