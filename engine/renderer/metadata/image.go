package metadata

import (
	"image"
	"image/draw"
)

/**
 * @brief Decoded pixel data as produced by a Decoder, before any GPU upload.
 */
type ImageData struct {
	/** @brief Tightly packed RGBA8 pixels, row-major. */
	Pixels []uint8
	/** @brief The image Width. */
	Width uint32
	/** @brief The image Height. */
	Height uint32
	/** @brief The number of channels per pixel. */
	ChannelCount uint8
	/** @brief The source format name reported by the decoder (png, jpeg, ...). */
	Format string
}

// Size returns the pixel payload size in bytes.
func (d *ImageData) Size() uint64 {
	return uint64(len(d.Pixels))
}

// HasTransparency scans the alpha channel for any non-opaque pixel.
func (d *ImageData) HasTransparency() bool {
	if d.ChannelCount != 4 {
		return false
	}
	for i := 3; i < len(d.Pixels); i += 4 {
		if d.Pixels[i] < 255 {
			return true
		}
	}
	return false
}

// NewImageDataFromImage flattens any image.Image into RGBA8 pixel data.
func NewImageDataFromImage(img image.Image, format string) *ImageData {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return &ImageData{
		Pixels:       rgba.Pix,
		Width:        uint32(bounds.Dx()),
		Height:       uint32(bounds.Dy()),
		ChannelCount: 4,
		Format:       format,
	}
}
