package agents

import (
	"math"

	"github.com/dyike/CortexQuant/models"
)

func closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// sma returns the mean of the last n values, or 0 when there are fewer.
func sma(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// emaSeries is the exponential moving average seeded with the first value.
func emaSeries(values []float64, n int) []float64 {
	if len(values) == 0 {
		return nil
	}
	k := 2.0 / float64(n+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// macd returns the last MACD line, signal and histogram for (12, 26, 9).
func macd(values []float64) (line, signal, hist float64) {
	if len(values) < 26 {
		return 0, 0, 0
	}
	fast := emaSeries(values, 12)
	slow := emaSeries(values, 26)
	diff := make([]float64, len(values))
	for i := range values {
		diff[i] = fast[i] - slow[i]
	}
	sig := emaSeries(diff, 9)
	line = diff[len(diff)-1]
	signal = sig[len(sig)-1]
	return line, signal, line - signal
}

// rsi uses Wilder smoothing over period n.
func rsi(values []float64, n int) float64 {
	if len(values) <= n {
		return 50
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(n)
	loss /= float64(n)
	for i := n + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(n-1) + g) / float64(n)
		loss = (loss*float64(n-1) + l) / float64(n)
	}
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// bollinger returns the (20, 2) bands around the last close.
func bollinger(values []float64, n int, width float64) (upper, mid, lower float64) {
	if len(values) < n {
		return 0, 0, 0
	}
	window := values[len(values)-n:]
	mid = sma(values, n)
	var sq float64
	for _, v := range window {
		sq += (v - mid) * (v - mid)
	}
	sd := math.Sqrt(sq / float64(n))
	return mid + width*sd, mid, mid - width*sd
}

// kdj is the (9, 3, 3) stochastic oscillator; K and D start at 50.
func kdj(candles []models.Candle, n int) (k, d, j float64) {
	k, d = 50, 50
	if len(candles) < n {
		return k, d, 3*k - 2*d
	}
	for i := n - 1; i < len(candles); i++ {
		lo, hi := candles[i].Low, candles[i].High
		for _, c := range candles[i-n+1 : i] {
			lo = math.Min(lo, c.Low)
			hi = math.Max(hi, c.High)
		}
		rsv := 50.0
		if hi > lo {
			rsv = (candles[i].Close - lo) / (hi - lo) * 100
		}
		k = (2*k + rsv) / 3
		d = (2*d + k) / 3
	}
	return k, d, 3*k - 2*d
}

// dailyReturns are simple close-to-close returns.
func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func round(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

func volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// pctChange is the change of the last value against the one n bars earlier.
func pctChange(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) <= n {
		return 0, false
	}
	base := values[len(values)-1-n]
	if base == 0 {
		return 0, false
	}
	return values[len(values)-1]/base - 1, true
}

// macdHistogram is the (12, 26, 9) histogram series, nil below 26 values.
func macdHistogram(values []float64) []float64 {
	if len(values) < 26 {
		return nil
	}
	fast := emaSeries(values, 12)
	slow := emaSeries(values, 26)
	diff := make([]float64, len(values))
	for i := range values {
		diff[i] = fast[i] - slow[i]
	}
	sig := emaSeries(diff, 9)
	out := make([]float64, len(values))
	for i := range diff {
		out[i] = diff[i] - sig[i]
	}
	return out
}

// macdGoldenCross reports whether the histogram turned positive on the last bar.
func macdGoldenCross(values []float64) bool {
	hist := macdHistogram(values)
	n := len(hist)
	return n > 1 && hist[n-1] > 0 && hist[n-2] <= 0
}

// bandPosition places the last value inside the (n, width) Bollinger band:
// 0 at the lower band, 1 at the upper. A flat band gives 0.5.
func bandPosition(values []float64, n int, width float64) float64 {
	upper, _, lower := bollinger(values, n, width)
	if len(values) == 0 || upper <= lower {
		return 0.5
	}
	return (values[len(values)-1] - lower) / (upper - lower)
}

// atrSeries is the n-bar simple average of true range.
func atrSeries(candles []models.Candle, n int) []float64 {
	if n <= 0 || len(candles) <= n {
		return nil
	}
	tr := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1].Close
		tr = append(tr, math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev))))
	}
	out := make([]float64, 0, len(tr)-n+1)
	for i := n; i <= len(tr); i++ {
		out = append(out, sma(tr[:i], n))
	}
	return out
}

// sampleStddev uses the n-1 denominator.
func sampleStddev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	return stddev(values) * math.Sqrt(float64(n)/float64(n-1))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
