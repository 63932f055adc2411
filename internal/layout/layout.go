// Package layout holds the pane geometry rules of the editor page: the
// editor/preview split and the stacked editor and console splits.
package layout

// Pane size floors in CSS pixels.
const (
	MinHorizontal = 150.0
	MinVertical   = 50.0
)

// StorageKey is the key the last pane layout is persisted under.
const StorageKey = "paneLayout"

// ClampSplit clamps the position of a divider inside a container so neither
// side drops below min. Containers narrower than two floors split evenly.
func ClampSplit(container, position, min float64) float64 {
	if container < 2*min {
		return container / 2
	}
	if position < min {
		return min
	}
	if position > container-min {
		return container - min
	}
	return position
}

// Redistribute moves a divider between two adjacent panes by delta. The sum
// of both panes is preserved and neither pane goes below min, even when the
// gesture overshoots. Panes too small to hold two floors split evenly.
func Redistribute(prev, next, delta, min float64) (float64, float64) {
	total := prev + next
	if total < 2*min {
		return total / 2, total / 2
	}
	newPrev := prev + delta
	newNext := next - delta

	if newPrev < min {
		newPrev = min
		newNext = total - min
	}
	if newNext < min {
		newNext = min
		newPrev = total - min
	}
	return newPrev, newNext
}

// Layout is the persisted pane geometry reported by the host page.
type Layout struct {
	ContainerWidth float64   `json:"containerWidth"`
	EditorWidth    float64   `json:"editorWidth"`
	EditorHeights  []float64 `json:"editorHeights,omitempty"`
	PreviewHeight  float64   `json:"previewHeight,omitempty"`
	ConsoleHeight  float64   `json:"consoleHeight,omitempty"`
}

// Clamped returns a copy with every pane raised to its floor and the
// editor width kept inside the container.
func (l Layout) Clamped() Layout {
	out := l
	if out.ContainerWidth > 0 {
		out.EditorWidth = ClampSplit(out.ContainerWidth, out.EditorWidth, MinHorizontal)
	} else if out.EditorWidth < MinHorizontal {
		out.EditorWidth = MinHorizontal
	}

	if len(l.EditorHeights) > 0 {
		out.EditorHeights = make([]float64, len(l.EditorHeights))
		for i, h := range l.EditorHeights {
			out.EditorHeights[i] = floor(h, MinVertical)
		}
	}
	if out.PreviewHeight != 0 {
		out.PreviewHeight = floor(out.PreviewHeight, MinVertical)
	}
	if out.ConsoleHeight != 0 {
		out.ConsoleHeight = floor(out.ConsoleHeight, MinVertical)
	}
	return out
}

func floor(v, min float64) float64 {
	if v < min {
		return min
	}
	return v
}
