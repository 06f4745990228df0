package metadata

import (
	"sync/atomic"

	"github.com/google/uuid"
)

/** @brief Generation value of a texture whose pixel data is not resident. */
const InvalidGeneration uint32 = 0xFFFFFFFF

type TextureFlag int

const (
	/** @brief Indicates if the texture has transparency. */
	TextureFlagHasTransparency TextureFlag = 0x1
	/** @brief Indicates if the texture can be written (rendered) to. */
	TextureFlagIsWriteable TextureFlag = 0x2
)

/** @brief Holds bit flags for textures. */
type TextureFlagBits uint8

/** @brief Represents supported texture filtering modes. */
type TextureFilter int

const (
	/** @brief Nearest-neighbor filtering. */
	TextureFilterModeNearest TextureFilter = 0x0
	/** @brief Linear (i.e. bilinear) filtering.*/
	TextureFilterModeLinear TextureFilter = 0x1
)

type TextureRepeat int

const (
	TextureRepeatRepeat         TextureRepeat = 0x1
	TextureRepeatMirroredRepeat TextureRepeat = 0x2
	TextureRepeatClampToEdge    TextureRepeat = 0x3
	TextureRepeatClampToBorder  TextureRepeat = 0x4
)

/**
 * @brief Sampling and wrap state applied to a texture. Recorded alongside the
 * texture so it can be reapplied after the GPU-side storage is regenerated.
 */
type TextureParams struct {
	FilterMin TextureFilter
	FilterMag TextureFilter
	RepeatU   TextureRepeat
	RepeatV   TextureRepeat
}

func DefaultTextureParams() TextureParams {
	return TextureParams{
		FilterMin: TextureFilterModeLinear,
		FilterMag: TextureFilterModeLinear,
		RepeatU:   TextureRepeatClampToEdge,
		RepeatV:   TextureRepeatClampToEdge,
	}
}

/**
 * @brief Represents a GPU-resident texture. The Handle is the stable identity:
 * it survives a context-loss reload even though the GPU-side storage is
 * replaced and the Generation bumps.
 */
type Texture struct {
	/** @brief The unique texture identifier. */
	Handle uuid.UUID
	/** @brief The cache key this texture was registered under, if any. */
	Name string
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief The number of channels in the texture. */
	ChannelCount uint8
	/** @brief Holds various Flags for this texture. */
	Flags TextureFlagBits
	/** @brief Incremented every time the pixel data is (re)uploaded. */
	Generation uint32
	/** @brief Last-applied sampling parameters. */
	Params TextureParams
	/** @brief Backend-specific data owned by the graphics device. */
	InternalData interface{}

	refCount atomic.Int32
}

// NewTexture returns a texture holding one reference, owned by the creator.
func NewTexture(name string) *Texture {
	t := &Texture{
		Handle:     uuid.New(),
		Name:       name,
		Generation: InvalidGeneration,
		Params:     DefaultTextureParams(),
	}
	t.refCount.Store(1)
	return t
}

// Retain adds a reference and returns the texture for chaining.
func (t *Texture) Retain() *Texture {
	t.refCount.Add(1)
	return t
}

// Release drops a reference. It reports true when the count reached zero and
// the holder that released last must destroy the texture.
func (t *Texture) Release() bool {
	return t.refCount.Add(-1) == 0
}

// RetainCount returns the current number of holders.
func (t *Texture) RetainCount() int32 {
	return t.refCount.Load()
}

// Valid reports whether the texture has resident pixel data.
func (t *Texture) Valid() bool {
	return t != nil && t.Generation != InvalidGeneration
}

// MemoryFootprint estimates the GPU-side byte size of the texture.
func (t *Texture) MemoryFootprint() uint64 {
	bpp := uint64(t.ChannelCount)
	if bpp == 0 {
		bpp = 4
	}
	return uint64(t.Width) * uint64(t.Height) * bpp
}
