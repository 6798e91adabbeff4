package proto

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type echoServer struct {
	UnimplementedBacktestServiceServer
}

func (echoServer) ExecuteBacktest(_ context.Context, req *BacktestRequest) (*BacktestResponse, error) {
	if req.Symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}
	return &BacktestResponse{
		JobId:    "job-" + req.Symbol,
		Strategy: req.Preset,
		Summary:  &Summary{TradeCount: int32(len(req.Candles)), TotalProfit: "1.50"},
	}, nil
}

func dial(t *testing.T, srv BacktestServiceServer) BacktestServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterBacktestServiceServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewBacktestServiceClient(conn)
}

func TestExecuteBacktestOverJSONCodec(t *testing.T) {
	client := dial(t, echoServer{})
	resp, err := client.ExecuteBacktest(context.Background(), &BacktestRequest{
		Symbol:  "BTC/USDT",
		Preset:  "ema_crossover",
		Config:  []byte(`{"engine":{"fee":0}}`),
		Candles: []*Candle{{Timestamp: 1}, {Timestamp: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.JobId != "job-BTC/USDT" || resp.Strategy != "ema_crossover" || resp.Summary.TradeCount != 2 || resp.Summary.TotalProfit != "1.50" {
		t.Fatalf("unexpected response %+v", resp)
	}

	_, err = client.ExecuteBacktest(context.Background(), &BacktestRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestUnimplemented(t *testing.T) {
	client := dial(t, UnimplementedBacktestServiceServer{})
	_, err := client.ExecuteBacktest(context.Background(), &BacktestRequest{Symbol: "X"})
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}
