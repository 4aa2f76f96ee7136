package store

import (
	"github.com/zhaoqi/breadth/internal/contracts"
)

// Adjusted derives a forward-adjusted copy of an ascending bar series:
// adj(D) = raw(D) * factor(D) / factor(R), where R is the most recent
// bar in the series. Because R shifts as new days arrive, adjusted
// series are recomputed on every use and never stored.
//
// Missing factors (zero) are carried forward from the previous bar; a
// series with no usable factor at all is returned unscaled.
func Adjusted(bars []contracts.PriceBar) []contracts.PriceBar {
	if len(bars) == 0 {
		return nil
	}

	factors := make([]float64, len(bars))
	last := 0.0
	for i, b := range bars {
		f := b.AdjFactor
		if f <= 0 {
			f = last
		}
		factors[i] = f
		last = f
	}

	ref := factors[len(factors)-1]
	if ref <= 0 {
		out := make([]contracts.PriceBar, len(bars))
		copy(out, bars)
		return out
	}

	out := make([]contracts.PriceBar, len(bars))
	for i, b := range bars {
		f := factors[i]
		if f <= 0 {
			// No factor seen yet at the head of the series; leave raw.
			f = ref
		}
		scale := f / ref
		b.Open *= scale
		b.High *= scale
		b.Low *= scale
		b.Close *= scale
		out[i] = b
	}

	return out
}
