package fonts

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

// FontSpec selects the face used to rasterize a string texture. Face is a
// rasterizer-specific name (for atlas fonts, the .fnt base name); Size is in
// pixels and may be ignored by fixed-size faces.
type FontSpec struct {
	Face string
	Size uint32
}

// Rasterizer renders a string into pixel data for upload as a texture.
type Rasterizer interface {
	RenderString(text string, spec FontSpec) (*metadata.ImageData, error)
}

// BasicRasterizer renders with the embedded basicfont face. It needs no
// assets on disk, which makes it the stock choice for debug text.
type BasicRasterizer struct{}

func NewBasicRasterizer() *BasicRasterizer {
	return &BasicRasterizer{}
}

func (r *BasicRasterizer) RenderString(text string, spec FontSpec) (*metadata.ImageData, error) {
	if text == "" {
		return nil, fmt.Errorf("rasterize: empty string")
	}
	face := basicfont.Face7x13

	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	if width <= 0 {
		width = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(text)

	return metadata.NewImageDataFromImage(dst, "text"), nil
}

// blit copies a glyph rectangle from an atlas page onto the destination.
func blit(dst *image.RGBA, dstX, dstY int, page image.Image, r image.Rectangle) {
	target := image.Rect(dstX, dstY, dstX+r.Dx(), dstY+r.Dy())
	draw.Draw(dst, target, page, r.Min, draw.Over)
}
