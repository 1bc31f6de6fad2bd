package visualization

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/nenv"
)

// Raster renders spike trains: one row per unit, one column per frame, '|'
// where the unit fired. frames[k][id] is unit id's firing state at step
// start+k. Rows are labelled with unit ids.
func Raster(frames [][]bool, units []int, start int) string {
	var b strings.Builder
	width := len(fmt.Sprint(maxOf(units)))
	fmt.Fprintf(&b, "%*s  t=%d..%d\n", width, "", start, start+len(frames)-1)
	for _, id := range units {
		fmt.Fprintf(&b, "%*d  ", width, id)
		for _, frame := range frames {
			if id >= 0 && id < len(frame) && frame[id] {
				b.WriteByte('|')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func maxOf(xs []int) int {
	m := 0
	for _, x := range xs {
		m = max(m, x)
	}
	return m
}

// sparkLevels are the eight block heights used by Sparkline.
var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders values as a row of block characters scaled to [lo, hi].
// When lo == hi the range is taken from the data.
func Sparkline(values []float64, lo, hi float64) string {
	if len(values) == 0 {
		return ""
	}
	if lo == hi {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, v := range values {
			lo, hi = min(lo, v), max(hi, v)
		}
	}
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if hi > lo {
			f := (v - lo) / (hi - lo)
			idx = int(math.Round(f * float64(len(sparkLevels)-1)))
			idx = max(0, min(len(sparkLevels)-1, idx))
		}
		b.WriteRune(sparkLevels[idx])
	}
	return b.String()
}

// Downsample reduces values to at most width points by averaging buckets.
func Downsample(values []float64, width int) []float64 {
	if width <= 0 || len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for k := range out {
		lo := k * len(values) / width
		hi := (k + 1) * len(values) / width
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[k] = sum / float64(hi-lo)
	}
	return out
}

// RenderGrid draws the current state of a grid network: '*' for firing
// units, 'o' for resting inhibitory units, '.' for resting excitatory units.
// Non-grid networks are drawn as a single row.
func RenderGrid(net *network.Network) string {
	var b strings.Builder
	cell := func(id int) byte {
		u := net.Neuron(id)
		switch {
		case u.IsFiring():
			return '*'
		case u.Type() == nenv.Inhibitory:
			return 'o'
		default:
			return '.'
		}
	}

	w := net.GridWidth()
	if w == 0 {
		for id := 0; id < net.NumNeurons(); id++ {
			b.WriteByte(cell(id))
		}
		b.WriteByte('\n')
		return b.String()
	}
	for row := 0; row < w; row++ {
		wrote := false
		for col := 0; col < w; col++ {
			id, ok := net.CoordsToIndex(row, col)
			if !ok {
				break
			}
			if col > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte(cell(id))
			wrote = true
		}
		if wrote {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
