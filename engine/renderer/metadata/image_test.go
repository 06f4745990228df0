package metadata

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageDataFromRGBAIsZeroCopy(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.SetRGBA(0, 0, color.RGBA{R: 9, A: 255})

	data := NewImageDataFromImage(src, "png")
	assert.EqualValues(t, 3, data.Width)
	assert.EqualValues(t, 2, data.Height)
	assert.EqualValues(t, 4, data.ChannelCount)
	assert.Equal(t, "png", data.Format)

	// The fast path shares the source buffer.
	src.SetRGBA(1, 0, color.RGBA{G: 7, A: 255})
	assert.EqualValues(t, 7, data.Pixels[5])
}

func TestNewImageDataFromSubimage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.SetRGBA(2, 2, color.RGBA{R: 200, A: 255})
	sub := src.SubImage(image.Rect(2, 2, 4, 4)).(*image.RGBA)

	data := NewImageDataFromImage(sub, "png")
	assert.EqualValues(t, 2, data.Width)
	assert.EqualValues(t, 2, data.Height)
	require.Len(t, data.Pixels, 16)
	assert.EqualValues(t, 200, data.Pixels[0])
}

func TestNewImageDataFromGray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.SetGray(0, 0, color.Gray{Y: 128})

	data := NewImageDataFromImage(src, "jpeg")
	assert.EqualValues(t, 4, data.ChannelCount)
	require.Len(t, data.Pixels, 8)
	assert.EqualValues(t, 128, data.Pixels[0])
	assert.EqualValues(t, 255, data.Pixels[3])
}

func TestHasTransparency(t *testing.T) {
	opaque := &ImageData{Pixels: []uint8{1, 2, 3, 255}, Width: 1, Height: 1, ChannelCount: 4}
	assert.False(t, opaque.HasTransparency())

	translucent := &ImageData{Pixels: []uint8{1, 2, 3, 254}, Width: 1, Height: 1, ChannelCount: 4}
	assert.True(t, translucent.HasTransparency())

	rgb := &ImageData{Pixels: []uint8{1, 2, 3}, Width: 1, Height: 1, ChannelCount: 3}
	assert.False(t, rgb.HasTransparency())
}

func TestSize(t *testing.T) {
	data := &ImageData{Pixels: make([]uint8, 64)}
	assert.EqualValues(t, 64, data.Size())
}
