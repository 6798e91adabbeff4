package server

import (
	"time"

	"github.com/shopspring/decimal"

	pb "breakout-backtest/proto"
	"breakout-backtest/services/backtest"
	"breakout-backtest/services/candles"
	"breakout-backtest/services/engine"
)

func dec(v float64, places int32) string { return decimal.NewFromFloat(v).StringFixed(places) }

func fromProtoCandles(in []*pb.Candle) []candles.Candle {
	out := make([]candles.Candle, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, candles.Candle{
			Time:   time.UnixMilli(c.Timestamp).UTC(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return out
}

// ToProtoCandles is the inverse of the request decoding, used by clients.
func ToProtoCandles(cs []candles.Candle) []*pb.Candle {
	out := make([]*pb.Candle, len(cs))
	for i, c := range cs {
		out[i] = &pb.Candle{Timestamp: c.UnixMilli(), Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
	}
	return out
}

func toResponse(jobID string, rep *backtest.Report, m backtest.Manifest, took time.Duration) *pb.BacktestResponse {
	resp := &pb.BacktestResponse{
		JobId:         jobID,
		ExecutionTime: took.Milliseconds(),
		Strategy:      rep.Strategy,
		Summary:       toSummary(rep.Result),
		Trades:        make([]*pb.ExecutedTrade, len(rep.Trades)),
		Diagnostics: &pb.Diagnostics{
			Candles:            int32(rep.Diagnostics.Candles),
			Processed:          int32(rep.Diagnostics.Processed),
			UndefinedSkipped:   int32(rep.Diagnostics.UndefinedSkipped),
			DegenerateRejected: int32(rep.Diagnostics.DegenerateRejected),
			Reason:             rep.Diagnostics.ReasonText,
		},
		Manifest: &pb.RunManifest{
			JobId:         m.JobID,
			ConfigHash:    m.ConfigHash,
			DataChecksum:  m.DataChecksum,
			EngineVersion: m.EngineVersion,
			Candles:       int64(m.Candles),
			FirstCandle:   m.FirstCandle,
			LastCandle:    m.LastCandle,
			CreatedAt:     m.CreatedAt,
		},
	}
	for i, t := range rep.Trades {
		resp.Trades[i] = toTrade(t)
	}
	if p := rep.Open; p != nil {
		open := &pb.OpenPosition{
			EntryTime:  p.EntryTime.UnixMilli(),
			Direction:  p.Direction.String(),
			EntryPrice: dec(p.EntryPrice, 4),
			Stop:       dec(p.Stop, 4),
			Target:     dec(p.Target, 4),
			Quantity:   decimal.NewFromFloat(p.Quantity).Round(8).String(),
		}
		if len(rep.Frame) > 0 {
			open.Unrealized = dec(p.Unrealized(rep.Frame[len(rep.Frame)-1].Close), 2)
		}
		resp.Open = open
	}
	return resp
}

func toTrade(t engine.Trade) *pb.ExecutedTrade {
	return &pb.ExecutedTrade{
		EntryTime:  t.EntryTime.UnixMilli(),
		ExitTime:   t.ExitTime.UnixMilli(),
		Direction:  t.Direction.String(),
		EntryPrice: dec(t.EntryPrice, 4),
		ExitPrice:  dec(t.ExitPrice, 4),
		Stop:       dec(t.Stop, 4),
		Target:     dec(t.Target, 4),
		Quantity:   decimal.NewFromFloat(t.Quantity).Round(8).String(),
		Profit:     dec(t.Profit, 2),
		ExitReason: string(t.ExitReason),
		BarsHeld:   int32(t.BarsHeld),
		OpenEnded:  t.OpenEnded,
	}
}

func toSummary(r engine.StrategyResult) *pb.Summary {
	return &pb.Summary{
		TotalProfit:  dec(r.TotalProfit, 2),
		TradeCount:   int32(r.TradeCount),
		Wins:         int32(r.Wins),
		Losses:       int32(r.Losses),
		WinRate:      dec(r.WinRate, 4),
		AvgWin:       dec(r.AvgWin, 2),
		AvgLoss:      dec(r.AvgLoss, 2),
		ProfitFactor: dec(r.ProfitFactor, 4),
		Expectancy:   dec(r.Expectancy, 2),
		MaxDrawdown:  dec(r.MaxDrawdown, 2),
	}
}
