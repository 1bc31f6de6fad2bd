// Package visualization renders network structure and activity in various
// output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/nenv"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT   Format = "dot"
	FormatJSON  Format = "json"
	FormatASCII Format = "ascii"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON, FormatASCII:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: dot, json, ascii)", s)
}

// Options control which connections are rendered.
type Options struct {
	// MinWeight hides connections whose weight is below it.
	MinWeight float64

	// Units restricts rendering to these ids. Nil renders every unit.
	Units []int
}

// nodeShapes maps unit types to DOT shapes.
var nodeShapes = map[nenv.NeuronType]string{
	nenv.Excitatory: "circle",
	nenv.Inhibitory: "box",
}

// edgeColors maps the sign of the presynaptic unit to DOT colors.
var edgeColors = map[nenv.NeuronType]string{
	nenv.Excitatory: "steelblue",
	nenv.Inhibitory: "tomato",
}

func (o Options) selected(n int) []int {
	if o.Units != nil {
		return o.Units
	}
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// RenderDOT produces a Graphviz DOT representation of the network's
// connectivity and current state. Units are pinned at their grid positions
// (render with neato -n or fdp); firing units are filled.
func RenderDOT(net *network.Network, opts Options) string {
	ids := opts.selected(net.NumNeurons())
	in := make(map[int]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}

	var b strings.Builder
	b.WriteString("digraph nenv {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\", fontsize=9, width=0.4, fixedsize=true];\n")
	b.WriteString("  edge [arrowsize=0.4];\n\n")

	for _, id := range ids {
		u := net.Neuron(id)
		if u == nil {
			continue
		}
		fill := "white"
		if u.IsFiring() {
			fill = "gold"
		}
		pos := ""
		if row, col, ok := net.IndexToCoords(id); ok {
			pos = fmt.Sprintf(", pos=\"%d,%d!\"", col, -row)
		}
		fmt.Fprintf(&b, "  n%d [label=\"%d\", shape=%s, fillcolor=%q%s, tooltip=\"energy=%.1f priority=%.2f\"];\n",
			id, id, nodeShapes[u.Type()], fill, pos, u.Glia().Energy(), u.Glia().Priority())
	}
	b.WriteString("\n")

	// Edge j -> i carries unit j's output into unit i.
	for _, i := range ids {
		u := net.Neuron(i)
		if u == nil {
			continue
		}
		weights := u.Dendritoma().Weights()
		for _, j := range net.Connections(i) {
			if !in[j] || weights[j] < opts.MinWeight {
				continue
			}
			fmt.Fprintf(&b, "  n%d -> n%d [color=%s, penwidth=%.2f, tooltip=\"w=%.3f\"];\n",
				j, i, edgeColors[net.Neuron(j).Type()], 0.5+3*weights[j], weights[j])
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready graph with nodes and edges arrays.
func RenderJSON(net *network.Network, opts Options) map[string]any {
	ids := opts.selected(net.NumNeurons())
	in := make(map[int]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}

	nodes := make([]map[string]any, 0, len(ids))
	var edges []map[string]any
	for _, i := range ids {
		u := net.Neuron(i)
		if u == nil {
			continue
		}
		node := map[string]any{
			"id":       i,
			"type":     u.Type().String(),
			"firing":   u.IsFiring(),
			"energy":   u.Glia().Energy(),
			"priority": u.Glia().Priority(),
		}
		if row, col, ok := net.IndexToCoords(i); ok {
			node["row"] = row
			node["col"] = col
		}
		nodes = append(nodes, node)

		weights := u.Dendritoma().Weights()
		for _, j := range net.Connections(i) {
			if !in[j] || weights[j] < opts.MinWeight {
				continue
			}
			edges = append(edges, map[string]any{
				"source": j,
				"target": i,
				"weight": weights[j],
			})
		}
	}

	return map[string]any{
		"time_step":  net.TimeStep(),
		"alert":      net.AlertLevel(),
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
	}
}
