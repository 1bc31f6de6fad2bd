package visualization

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nvandessel/nenv/internal/network"
)

func newNetwork(t *testing.T, mutate func(*network.Config)) *network.Network {
	t.Helper()
	cfg := network.DefaultConfig()
	cfg.NumNeurons = 9
	if mutate != nil {
		mutate(&cfg)
	}
	net, err := network.New(cfg)
	if err != nil {
		t.Fatalf("network.New: %v", err)
	}
	return net
}

func TestRenderDOT_Structure(t *testing.T) {
	net := newNetwork(t, nil)
	dot := RenderDOT(net, Options{})

	if !strings.HasPrefix(dot, "digraph nenv {") {
		t.Error("expected digraph header")
	}
	if !strings.HasSuffix(strings.TrimSpace(dot), "}") {
		t.Error("expected closing brace")
	}
	for id := 0; id < 9; id++ {
		if !strings.Contains(dot, "  n"+string(rune('0'+id))+" [label=") {
			t.Errorf("missing node %d", id)
		}
	}
	// Center of a 3x3 grid sits at col 1, row 1.
	if !strings.Contains(dot, `pos="1,-1!"`) {
		t.Error("expected grid position for the center unit")
	}
	// Unit 0 on a 3x3 grid has 3 neighbors; 4 corners*3 + 4 edges*5 + center 8 = 40.
	if got := strings.Count(dot, " -> "); got != 40 {
		t.Errorf("edge count = %d, want 40", got)
	}
	if strings.Contains(dot, "gold") {
		t.Error("no unit should be highlighted before any update")
	}
}

func TestRenderDOT_ShapesAndFiring(t *testing.T) {
	net := newNetwork(t, func(c *network.Config) { c.InhibitoryRatio = 0.34 })
	if err := net.Update(network.Stimulus{4: 5}); err != nil {
		t.Fatal(err)
	}
	dot := RenderDOT(net, Options{})

	if got := strings.Count(dot, "shape=box"); got != 3 {
		t.Errorf("inhibitory (box) nodes = %d, want 3", got)
	}
	if got := strings.Count(dot, "shape=circle"); got != 6 {
		t.Errorf("excitatory (circle) nodes = %d, want 6", got)
	}
	if got := strings.Count(dot, `fillcolor="gold"`); got != net.NumFiring() || got == 0 {
		t.Errorf("highlighted = %d, firing = %d", got, net.NumFiring())
	}
	if !strings.Contains(dot, "color=tomato") {
		t.Error("expected inhibitory edges")
	}
}

func TestRenderDOT_Filters(t *testing.T) {
	net := newNetwork(t, nil)

	if got := strings.Count(RenderDOT(net, Options{MinWeight: 2}), " -> "); got != 0 {
		t.Errorf("MinWeight above every weight left %d edges", got)
	}

	dot := RenderDOT(net, Options{Units: []int{0, 1}})
	if strings.Contains(dot, "n2 [") {
		t.Error("unit outside the selection rendered")
	}
	if got := strings.Count(dot, " -> "); got != 2 {
		t.Errorf("edges within {0,1} = %d, want 2", got)
	}
}

func TestRenderDOT_FullyConnectedHasNoPositions(t *testing.T) {
	net := newNetwork(t, func(c *network.Config) { c.Connectivity = network.FullyConnected })
	dot := RenderDOT(net, Options{})
	if strings.Contains(dot, "pos=") {
		t.Error("fully connected networks have no grid positions")
	}
	if got := strings.Count(dot, " -> "); got != 72 {
		t.Errorf("edge count = %d, want 72", got)
	}
}

func TestRenderJSON(t *testing.T) {
	net := newNetwork(t, nil)
	graph := RenderJSON(net, Options{})

	if graph["node_count"] != 9 || graph["edge_count"] != 40 {
		t.Errorf("counts = %v / %v", graph["node_count"], graph["edge_count"])
	}
	data, err := json.Marshal(graph)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Nodes []struct {
			ID   int    `json:"id"`
			Type string `json:"type"`
			Row  int    `json:"row"`
			Col  int    `json:"col"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if n := decoded.Nodes[5]; n.Row != 1 || n.Col != 2 {
		t.Errorf("node 5 at (%d,%d), want (1,2)", n.Row, n.Col)
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"dot", "JSON", "ascii"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", s, err)
		}
	}
	if _, err := ParseFormat("svg"); err == nil {
		t.Error("ParseFormat(svg) succeeded")
	}
}

func TestRaster(t *testing.T) {
	frames := [][]bool{
		{true, false, false},
		{false, false, true},
		{true, false, false},
	}
	got := Raster(frames, []int{0, 2}, 10)
	want := "   t=10..12\n0  |.|\n2  .|.\n"
	if got != want {
		t.Errorf("Raster() =\n%q\nwant\n%q", got, want)
	}
}

func TestSparkline(t *testing.T) {
	got := Sparkline([]float64{0, 0.5, 1}, 0, 1)
	if got != "▁▅█" {
		t.Errorf("Sparkline() = %q", got)
	}
	if got := Sparkline([]float64{3, 3}, 0, 0); got != "▁▁" {
		t.Errorf("flat Sparkline() = %q", got)
	}
	if Sparkline(nil, 0, 1) != "" {
		t.Error("empty input should render empty")
	}
	if n := utf8.RuneCountInString(Sparkline(Downsample(make([]float64, 500), 60), 0, 1)); n != 60 {
		t.Errorf("downsampled width = %d, want 60", n)
	}
}

func TestDownsample(t *testing.T) {
	got := Downsample([]float64{1, 3, 5, 7}, 2)
	if len(got) != 2 || got[0] != 2 || got[1] != 6 {
		t.Errorf("Downsample() = %v", got)
	}
	short := []float64{1, 2}
	if got := Downsample(short, 10); len(got) != 2 {
		t.Errorf("Downsample() of short series = %v", got)
	}
}

func TestRenderGrid(t *testing.T) {
	net := newNetwork(t, func(c *network.Config) { c.NumNeurons = 10; c.InhibitoryRatio = 0 })
	got := RenderGrid(net)
	want := ". . . .\n. . . .\n. .\n"
	if got != want {
		t.Errorf("RenderGrid() =\n%q\nwant\n%q", got, want)
	}

	full := newNetwork(t, func(c *network.Config) { c.Connectivity = network.FullyConnected; c.InhibitoryRatio = 0 })
	if got := RenderGrid(full); got != ".........\n" {
		t.Errorf("RenderGrid(fully connected) = %q", got)
	}
}
