package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampSplit(t *testing.T) {
	tests := []struct {
		name      string
		container float64
		position  float64
		want      float64
	}{
		{"inside", 1000, 400, 400},
		{"below floor", 1000, 20, 150},
		{"negative overshoot", 1000, -300, 150},
		{"above ceiling", 1000, 990, 850},
		{"exact floor", 1000, 150, 150},
		{"narrow container", 200, 10, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampSplit(tt.container, tt.position, MinHorizontal))
		})
	}
}

func TestRedistribute(t *testing.T) {
	tests := []struct {
		name               string
		prev, next, delta  float64
		wantPrev, wantNext float64
	}{
		{"grow prev", 200, 200, 50, 250, 150},
		{"shrink prev", 200, 200, -50, 150, 250},
		{"prev overshoot", 200, 200, -400, 50, 350},
		{"next overshoot", 200, 200, 400, 350, 50},
		{"no movement", 120, 80, 0, 120, 80},
		{"too small for both floors", 60, 20, 10, 40, 40},
		{"too small, overshoot", 30, 40, -500, 35, 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, next := Redistribute(tt.prev, tt.next, tt.delta, MinVertical)
			assert.Equal(t, tt.wantPrev, prev)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.prev+tt.next, prev+next, "total height is preserved")
		})
	}
}

func TestLayoutClamped(t *testing.T) {
	l := Layout{
		ContainerWidth: 1200,
		EditorWidth:    1190,
		EditorHeights:  []float64{10, 300, 49},
		PreviewHeight:  20,
		ConsoleHeight:  120,
	}

	got := l.Clamped()
	assert.Equal(t, 1050.0, got.EditorWidth)
	assert.Equal(t, []float64{50, 300, 50}, got.EditorHeights)
	assert.Equal(t, 50.0, got.PreviewHeight)
	assert.Equal(t, 120.0, got.ConsoleHeight)

	assert.Equal(t, []float64{10, 300, 49}, l.EditorHeights, "input must not be modified")
}

func TestLayoutClampedWithoutContainer(t *testing.T) {
	got := Layout{EditorWidth: 40}.Clamped()
	assert.Equal(t, MinHorizontal, got.EditorWidth)
	assert.Zero(t, got.ConsoleHeight)
}
