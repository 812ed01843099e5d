package pixel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownscale8_FactorOneIsIdentity(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst, w, h := Downscale8(src, 2, 2, 1, 1, true)
	assert.Equal(t, src, dst)
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
}

func TestDownscale8_NearestPicksTopLeft(t *testing.T) {
	// 4x2 single channel, factor 2 -> 2x1
	src := []byte{
		10, 20, 30, 40,
		50, 60, 70, 80,
	}
	dst, w, h := Downscale8(src, 4, 2, 1, 2, false)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	assert.Equal(t, []byte{10, 30}, dst)
}

func TestDownscale8_SmoothingAverages(t *testing.T) {
	src := []byte{
		10, 20, 30, 40,
		50, 60, 70, 80,
	}
	dst, w, h := Downscale8(src, 4, 2, 1, 2, true)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	// block averages: (10+20+50+60)/4 and (30+40+70+80)/4
	assert.Equal(t, []byte{35, 55}, dst)
}

func TestDownscale8_Interleaved(t *testing.T) {
	// 2x2 RGB, factor 2 -> 1x1, per-channel averages
	src := []byte{
		10, 0, 0, 20, 0, 0,
		30, 0, 0, 40, 0, 0,
	}
	dst, w, h := Downscale8(src, 2, 2, 3, 2, true)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
	assert.Equal(t, []byte{25, 0, 0}, dst)
}

func TestDownscale8_NeverCollapsesToZero(t *testing.T) {
	src := make([]byte, 3*3)
	_, w, h := Downscale8(src, 3, 3, 1, 8, false)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}
