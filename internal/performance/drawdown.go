package performance

import (
	"github.com/yourorg/backtest-service/internal/model"
)

// Drawdown describes the deepest peak-to-trough decline of a curve
type Drawdown struct {
	Depth  float64
	Peak   int
	Trough int
}

// MaxDrawdown scans the curve once keeping a running peak. Depth is negative or zero;
// Peak and Trough are -1 when the curve never declines. Equal depths keep the earliest.
func MaxDrawdown(curve []model.EquityPoint) Drawdown {
	dd := Drawdown{Peak: -1, Trough: -1}
	if len(curve) == 0 {
		return dd
	}
	peak := curve[0].Equity.InexactFloat64()
	peakIdx := 0
	for i, pt := range curve {
		v := pt.Equity.InexactFloat64()
		if v > peak {
			peak, peakIdx = v, i
			continue
		}
		if peak <= 0 {
			continue
		}
		if depth := v/peak - 1; depth < dd.Depth {
			dd = Drawdown{Depth: depth, Peak: peakIdx, Trough: i}
		}
	}
	return dd
}

// DrawdownSeries reports the distance from the running peak at every point
func DrawdownSeries(curve []model.EquityPoint) []model.DrawdownPoint {
	out := make([]model.DrawdownPoint, 0, len(curve))
	var peak float64
	for i, pt := range curve {
		v := pt.Equity.InexactFloat64()
		if i == 0 || v > peak {
			peak = v
		}
		var depth float64
		if peak > 0 {
			depth = v/peak - 1
		}
		out = append(out, model.DrawdownPoint{Timestamp: pt.Timestamp, Drawdown: depth})
	}
	return out
}
