package graph

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"
)

// DOTOptions configures [ToDOT].
type DOTOptions struct {
	// Selected is highlighted with a filled node.
	Selected string

	// Detailed labels edges with relation kinds and payment counts.
	// When false, edges are unlabeled.
	Detailed bool

	// ShortIDs abbreviates account addresses to their first and last 4
	// characters in node labels.
	ShortIDs bool
}

// ToDOT converts the displayed subgraph to Graphviz DOT. Each directed
// relation becomes one edge, so a link with forward and backward relations
// is drawn as two edges. The result can be rendered with [RenderSVG].
func ToDOT(d *Data, opts DOTOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph relations {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"monospace\", fontsize=12];\n")
	buf.WriteString("  edge [fontsize=10];\n")
	buf.WriteString("\n")

	if d != nil {
		for _, n := range d.Nodes {
			fmt.Fprintf(&buf, "  %q [%s];\n", n.id, strings.Join(nodeAttrs(n, opts), ", "))
		}

		buf.WriteString("\n")
		for _, l := range d.Links {
			for _, r := range l.Relations() {
				fmt.Fprintf(&buf, "  %q -> %q [%s];\n", r.Source.id, r.Target.id, strings.Join(relationAttrs(r, opts), ", "))
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(n *Node, opts DOTOptions) []string {
	label := n.id
	if opts.ShortIDs {
		label = ShortAddress(n.id)
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if n.id == opts.Selected {
		attrs = append(attrs, "fillcolor=\"#08b5e5\"", "fontcolor=white")
	}
	return attrs
}

func relationAttrs(r Relation, opts DOTOptions) []string {
	attrs := []string{fmt.Sprintf("id=%q", r.ID)}
	switch {
	case r.Kinds.Has(KindCreator):
		attrs = append(attrs, "style=bold", "color=\"#3fa142\"")
	case r.Kinds.Has(KindMergeDestination):
		attrs = append(attrs, "style=dashed", "color=\"#e5a008\"")
	default:
		attrs = append(attrs, "color=\"#7c7c7c\"")
	}
	if opts.Detailed {
		label := r.Kinds.String()
		if r.Transfers > 0 {
			label += fmt.Sprintf(" (%d)", r.Transfers)
		}
		attrs = append(attrs, fmt.Sprintf("label=%q", label))
	}
	return attrs
}

// ShortAddress abbreviates an account address as "GABC…WXYZ".
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:4] + "…" + address[len(address)-4:]
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the SVG scales with its
// container instead of using Graphviz's point dimensions.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
