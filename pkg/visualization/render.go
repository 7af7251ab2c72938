package visualization

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-graphviz"
)

// Render lays out the scene with neato, keeping the pinned positions, and
// writes it in the given format (graphviz.PNG, graphviz.SVG, ...).
func Render(ctx context.Context, sc *Scene, format graphviz.Format, w io.Writer) error {
	g, err := graphviz.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to start graphviz: %w", err)
	}
	defer g.Close()

	graph, err := graphviz.ParseBytes(DOT(sc))
	if err != nil {
		return fmt.Errorf("failed to parse graph %s: %w", sc.Name, err)
	}
	defer graph.Close()

	g.SetLayout(graphviz.NEATO)
	if err := g.Render(ctx, graph, format, w); err != nil {
		return fmt.Errorf("failed to render graph %s: %w", sc.Name, err)
	}
	return nil
}

// WriteFiles writes <dir>/<name>.dot and, when png is set, <dir>/<name>.png.
// It returns the paths written.
func WriteFiles(ctx context.Context, dir string, sc *Scene, png bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	dotPath := filepath.Join(dir, sc.Name+".dot")
	if err := os.WriteFile(dotPath, DOT(sc), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", dotPath, err)
	}
	paths := []string{dotPath}
	if !png {
		return paths, nil
	}

	pngPath := filepath.Join(dir, sc.Name+".png")
	f, err := os.Create(pngPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", pngPath, err)
	}
	if err := Render(ctx, sc, graphviz.PNG, f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return append(paths, pngPath), nil
}
