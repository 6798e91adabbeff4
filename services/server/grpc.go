package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	pb "breakout-backtest/proto"
	"breakout-backtest/services/backtest"
)

// ExecuteBacktest implements the gRPC ExecuteBacktest method
func (s *BacktestService) ExecuteBacktest(ctx context.Context, req *pb.BacktestRequest) (*pb.BacktestResponse, error) {
	res, err := s.Run(ctx, uuid.NewString(), req)
	if err != nil {
		return nil, grpcError(err)
	}
	return res.Response(), nil
}

func grpcError(err error) error {
	var cfgErr *backtest.ConfigError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// NewGRPCServer registers s on a new gRPC server with reflection enabled.
func NewGRPCServer(s *BacktestService, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logUnary))
	srv := grpc.NewServer(opts...)
	pb.RegisterBacktestServiceServer(srv, s)
	reflection.Register(srv)
	return srv
}

func (s *BacktestService) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("gRPC call",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, err
}
