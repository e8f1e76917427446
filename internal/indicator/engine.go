package indicator

import (
	"fmt"
	"sort"

	"CoinCast/internal/domain/models"
)

// Kind names a supported indicator.
type Kind string

const (
	KindSMA Kind = "sma"
	KindEMA Kind = "ema"
	KindRSI Kind = "rsi"
)

// Spec is one configured indicator: kind plus trailing window size.
type Spec struct {
	Kind   Kind `yaml:"kind"`
	Window int  `yaml:"window"`
}

// Column returns the output column name, e.g. "sma_20".
func (s Spec) Column() string { return fmt.Sprintf("%s_%d", s.Kind, s.Window) }

// Engine computes technical indicators over an ordered price series.
// Output is deterministic: same bars and specs produce byte-identical rows
// on every run (fixed column order, fixed float algorithm, no map
// iteration in the hot path).
type Engine struct {
	specs []Spec
}

// NewEngine validates and orders the configured specs. Column order is
// lexicographic so recomputation never depends on config file ordering.
func NewEngine(specs []Spec) (*Engine, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("indicator: at least one spec required")
	}
	seen := make(map[string]bool, len(specs))
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		switch s.Kind {
		case KindSMA, KindEMA, KindRSI:
		default:
			return nil, fmt.Errorf("indicator: unknown kind %q", s.Kind)
		}
		if s.Window < 2 {
			return nil, fmt.Errorf("indicator: window must be >= 2, got %d for %s", s.Window, s.Kind)
		}
		if seen[s.Column()] {
			return nil, fmt.Errorf("indicator: duplicate spec %s", s.Column())
		}
		seen[s.Column()] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Column() < out[j].Column() })
	return &Engine{specs: out}, nil
}

// Columns returns output column names in engine order.
func (e *Engine) Columns() []string {
	cols := make([]string, len(e.specs))
	for i, s := range e.specs {
		cols[i] = s.Column()
	}
	return cols
}

// MaxWindow returns the largest configured window; callers use it to load
// warmup bars ahead of the requested range.
func (e *Engine) MaxWindow() int {
	max := 0
	for _, s := range e.specs {
		if s.Window > max {
			max = s.Window
		}
	}
	return max
}

// Compute produces one IndicatorRow per input bar. Bars must be ordered by
// timestamp ascending. Timestamps with insufficient trailing history are
// missing, never zero or interpolated.
func (e *Engine) Compute(bars []models.PriceBar) []models.IndicatorRow {
	rows := make([]models.IndicatorRow, len(bars))
	for i, b := range bars {
		rows[i] = models.IndicatorRow{TS: b.TS, Values: make([]models.OptFloat, len(e.specs))}
	}
	for si, s := range e.specs {
		var col []models.OptFloat
		switch s.Kind {
		case KindSMA:
			col = sma(bars, s.Window)
		case KindEMA:
			col = ema(bars, s.Window)
		case KindRSI:
			col = rsi(bars, s.Window)
		}
		for i := range rows {
			rows[i].Values[si] = col[i]
		}
	}
	return rows
}

// sma is the arithmetic mean of close over the trailing window. The first
// window-1 points are missing.
func sma(bars []models.PriceBar, w int) []models.OptFloat {
	out := make([]models.OptFloat, len(bars))
	var sum float64
	for i, b := range bars {
		sum += b.Close
		if i >= w {
			sum -= bars[i-w].Close
		}
		if i >= w-1 {
			out[i] = models.Some(sum / float64(w))
		}
	}
	return out
}

// ema uses alpha = 2/(w+1), seeded with the SMA of the first window.
func ema(bars []models.PriceBar, w int) []models.OptFloat {
	out := make([]models.OptFloat, len(bars))
	if len(bars) < w {
		return out
	}
	alpha := 2.0 / float64(w+1)
	var seed float64
	for i := 0; i < w; i++ {
		seed += bars[i].Close
	}
	prev := seed / float64(w)
	out[w-1] = models.Some(prev)
	for i := w; i < len(bars); i++ {
		prev = alpha*bars[i].Close + (1-alpha)*prev
		out[i] = models.Some(prev)
	}
	return out
}

// rsi uses Wilder's smoothing of average gains and losses. It needs w
// deltas, i.e. w+1 bars, before the first defined value; everything
// earlier is missing.
func rsi(bars []models.PriceBar, w int) []models.OptFloat {
	out := make([]models.OptFloat, len(bars))
	if len(bars) < w+1 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= w; i++ {
		d := bars[i].Close - bars[i-1].Close
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(w)
	avgLoss /= float64(w)
	out[w] = models.Some(rsiValue(avgGain, avgLoss))
	for i := w + 1; i < len(bars); i++ {
		d := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(w-1) + gain) / float64(w)
		avgLoss = (avgLoss*float64(w-1) + loss) / float64(w)
		out[i] = models.Some(rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
