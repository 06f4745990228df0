package renderer

import (
	"fmt"
	"sync"

	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

// Device is the graphics backend the texture subsystem drives. All methods
// must be called from the owning thread; implementations are not required to
// be safe for concurrent use.
type Device interface {
	// TextureCreate uploads pixel data into the texture, replacing whatever
	// GPU-side storage it previously had. The texture object survives; its
	// Generation is bumped on success.
	TextureCreate(data *metadata.ImageData, texture *metadata.Texture) error
	// TextureWriteData overwrites a sub-range of the resident pixel data.
	TextureWriteData(texture *metadata.Texture, offset, size uint32, pixels []uint8) error
	// TextureSetParameters applies sampling/wrap state.
	TextureSetParameters(texture *metadata.Texture, params metadata.TextureParams) error
	// TextureDestroy releases the GPU-side storage.
	TextureDestroy(texture *metadata.Texture) error
}

type softwareStorage struct {
	pixels []uint8
}

// SoftwareDevice is a CPU-side Device used by the testbed and anywhere a GPU
// context is unavailable. Pixel storage lives in Texture.InternalData.
type SoftwareDevice struct {
	mu      sync.Mutex
	created int
}

func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{}
}

func (d *SoftwareDevice) TextureCreate(data *metadata.ImageData, texture *metadata.Texture) error {
	if data == nil || len(data.Pixels) == 0 {
		return fmt.Errorf("software device: no pixel data for texture '%s'", texture.Name)
	}
	store := &softwareStorage{pixels: make([]uint8, len(data.Pixels))}
	copy(store.pixels, data.Pixels)

	texture.Width = data.Width
	texture.Height = data.Height
	texture.ChannelCount = data.ChannelCount
	if data.HasTransparency() {
		texture.Flags |= metadata.TextureFlagBits(metadata.TextureFlagHasTransparency)
	}
	texture.InternalData = store
	if texture.Generation == metadata.InvalidGeneration {
		texture.Generation = 0
	} else {
		texture.Generation++
	}

	d.mu.Lock()
	d.created++
	d.mu.Unlock()
	return nil
}

func (d *SoftwareDevice) TextureWriteData(texture *metadata.Texture, offset, size uint32, pixels []uint8) error {
	store, ok := texture.InternalData.(*softwareStorage)
	if !ok {
		return fmt.Errorf("software device: texture '%s' has no resident storage", texture.Name)
	}
	if int(offset)+int(size) > len(store.pixels) || int(size) > len(pixels) {
		return fmt.Errorf("software device: write out of range for texture '%s'", texture.Name)
	}
	copy(store.pixels[offset:offset+size], pixels[:size])
	texture.Generation++
	return nil
}

func (d *SoftwareDevice) TextureSetParameters(texture *metadata.Texture, params metadata.TextureParams) error {
	texture.Params = params
	return nil
}

func (d *SoftwareDevice) TextureDestroy(texture *metadata.Texture) error {
	texture.InternalData = nil
	texture.Generation = metadata.InvalidGeneration
	return nil
}

// TexturePixels exposes the resident pixels of a software texture. Returns
// nil when the storage has been destroyed.
func (d *SoftwareDevice) TexturePixels(texture *metadata.Texture) []uint8 {
	if store, ok := texture.InternalData.(*softwareStorage); ok {
		return store.pixels
	}
	return nil
}

// CreatedCount reports how many uploads the device has performed.
func (d *SoftwareDevice) CreatedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}
