package performance

import (
	"math"
	"sort"
	"time"

	"github.com/yourorg/backtest-service/internal/model"
)

const (
	tradingDaysPerYear = 252
	tradingHoursPerDay = 6.5
)

// Returns is the period-over-period change of the equity curve
func Returns(curve []model.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	prev := curve[0].Equity.InexactFloat64()
	for _, pt := range curve[1:] {
		cur := pt.Equity.InexactFloat64()
		if prev == 0 {
			out = append(out, 0)
		} else {
			out = append(out, cur/prev-1)
		}
		prev = cur
	}
	return out
}

// InferAnnualization guesses periods per year from the median spacing of the curve
func InferAnnualization(curve []model.EquityPoint) float64 {
	if len(curve) < 2 {
		return tradingDaysPerYear
	}
	gaps := make([]time.Duration, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		gaps = append(gaps, curve[i].Timestamp.Sub(curve[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	median := gaps[len(gaps)/2]

	day := 24 * time.Hour
	switch {
	case median >= 20*day:
		return 12
	case median >= 5*day:
		return 52
	case median >= 20*time.Hour:
		return tradingDaysPerYear
	case median <= 0:
		return tradingDaysPerYear
	}
	session := time.Duration(tradingHoursPerDay * float64(time.Hour))
	return tradingDaysPerYear * float64(session) / float64(median)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev uses the n-1 denominator
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// downsideDeviation only counts returns below target, averaged over every period
func downsideDeviation(xs []float64, target float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		if d := x - target; d < 0 {
			ss += d * d
		}
	}
	return math.Sqrt(ss / float64(len(xs)))
}
