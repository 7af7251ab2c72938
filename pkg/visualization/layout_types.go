// Package visualization lays out attack graphs and service graphs and writes
// them as Graphviz DOT or rendered images.
package visualization

// Position represents a 2D coordinate
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LayoutConfig configures layout parameters
type LayoutConfig struct {
	Width   float64 // Canvas width in points
	Height  float64 // Canvas height in points
	Padding float64 // Padding from edges
}

// DefaultLayoutConfig fits a page-sized drawing.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{Width: 800, Height: 600, Padding: 50}
}

func (c LayoutConfig) withDefaults() LayoutConfig {
	d := DefaultLayoutConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.Padding == 0 {
		c.Padding = d.Padding
	}
	return c
}
