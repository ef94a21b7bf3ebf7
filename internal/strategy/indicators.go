package strategy

import (
	"github.com/yourorg/backtest-service/internal/model"
)

func closes(window []model.Bar) []float64 {
	out := make([]float64, len(window))
	for i, b := range window {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// sma is the simple moving average of the last n values ending at end (exclusive).
func sma(values []float64, end, n int) float64 {
	if n <= 0 || end < n {
		return 0
	}
	var sum float64
	for _, v := range values[end-n : end] {
		sum += v
	}
	return sum / float64(n)
}

// rsi uses Wilder smoothing over every change in values.
func rsi(values []float64, period int) float64 {
	if period <= 0 || len(values) <= period {
		return 50
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// channel returns the highest high and lowest low over bars.
func channel(bars []model.Bar) (float64, float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	hi := bars[0].High.InexactFloat64()
	lo := bars[0].Low.InexactFloat64()
	for _, b := range bars[1:] {
		if h := b.High.InexactFloat64(); h > hi {
			hi = h
		}
		if l := b.Low.InexactFloat64(); l < lo {
			lo = l
		}
	}
	return hi, lo
}
