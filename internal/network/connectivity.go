package network

import (
	"fmt"
	"math"
	"strings"
)

// Connectivity selects how units are wired at construction.
type Connectivity int

const (
	// Grid2D places units on a ceil(sqrt(N)) square grid and connects each
	// to its up-to-8 Moore neighbors.
	Grid2D Connectivity = iota
	// FullyConnected connects every pair of distinct units.
	FullyConnected
)

// String implements fmt.Stringer.
func (c Connectivity) String() string {
	switch c {
	case Grid2D:
		return "grid2d"
	case FullyConnected:
		return "fully_connected"
	default:
		return fmt.Sprintf("Connectivity(%d)", int(c))
	}
}

// ParseConnectivity maps a name to a Connectivity (case-insensitive).
// Accepted: "grid2d", "grid", "fully_connected", "full".
func ParseConnectivity(s string) (Connectivity, error) {
	switch strings.ToLower(s) {
	case "grid2d", "grid":
		return Grid2D, nil
	case "fully_connected", "full":
		return FullyConnected, nil
	}
	return 0, fmt.Errorf("unknown connectivity %q (valid: grid2d, fully_connected)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Connectivity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Connectivity) UnmarshalText(b []byte) error {
	v, err := ParseConnectivity(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// gridSide returns the side of the smallest square grid holding n units.
func gridSide(n int) int {
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// buildConnectivity returns the n x n boolean mask for the given topology.
// Self-connections are never present.
func buildConnectivity(n int, c Connectivity) [][]bool {
	mask := make([][]bool, n)
	for i := range mask {
		mask[i] = make([]bool, n)
	}

	switch c {
	case FullyConnected:
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				mask[i][j] = i != j
			}
		}
	case Grid2D:
		width := gridSide(n)
		for i := 0; i < n; i++ {
			row, col := i/width, i%width
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					r, cc := row+dr, col+dc
					if r < 0 || r >= width || cc < 0 || cc >= width {
						continue
					}
					// Cells past N on a partially filled last row do not exist.
					if j := r*width + cc; j < n {
						mask[i][j] = true
					}
				}
			}
		}
	}

	return mask
}
