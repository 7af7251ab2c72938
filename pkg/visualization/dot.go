package visualization

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// pointsPerInch converts layout coordinates to the inches DOT positions use.
const pointsPerInch = 72.0

// WriteDOT writes the scene as a Graphviz digraph with pinned node positions.
func WriteDOT(w io.Writer, sc *Scene) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "digraph %s {\n", quote(sc.Name))
	fmt.Fprintln(bw, "  node [shape=box, style=filled];")
	fmt.Fprintln(bw, "  edge [fontsize=10];")

	for _, n := range sc.Nodes {
		fmt.Fprintf(bw, "  %s [label=%s, fillcolor=%s, pos=\"%.2f,%.2f!\"];\n",
			quote(n.ID), quote(n.Label), quote(n.Color),
			n.Position.X/pointsPerInch, -n.Position.Y/pointsPerInch)
	}
	for _, e := range sc.Edges {
		fmt.Fprintf(bw, "  %s -> %s [label=%s, penwidth=%.1f];\n",
			quote(e.From), quote(e.To), quote(e.Label), e.Width)
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// DOT returns the scene in DOT format.
func DOT(sc *Scene) []byte {
	var buf bytes.Buffer
	_ = WriteDOT(&buf, sc)
	return buf.Bytes()
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func quote(s string) string {
	return `"` + dotEscaper.Replace(s) + `"`
}
