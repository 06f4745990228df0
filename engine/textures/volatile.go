package textures

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/PandaBlessing/cocos2d-x/engine/assets"
	"github.com/PandaBlessing/cocos2d-x/engine/core"
	"github.com/PandaBlessing/cocos2d-x/engine/fonts"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

// sourceKind says which reconstruction path a shadow record takes.
type sourceKind int

const (
	sourceInvalid sourceKind = iota
	sourceFile
	sourceRawBuffer
	sourceGeneratedText
	sourceDecodedImage
)

func (k sourceKind) String() string {
	switch k {
	case sourceFile:
		return "file"
	case sourceRawBuffer:
		return "raw"
	case sourceGeneratedText:
		return "text"
	case sourceDecodedImage:
		return "image"
	default:
		return "invalid"
	}
}

// shadowRecord keeps enough provenance to regenerate one texture. The
// registry does not own the texture, only the reconstruction metadata.
type shadowRecord struct {
	texture *metadata.Texture
	kind    sourceKind

	fileName string
	image    *metadata.ImageData
	text     string
	fontSpec fonts.FontSpec

	params    metadata.TextureParams
	hasParams bool
}

// ShadowRegistry tracks every live texture so GPU context loss can be
// survived by regenerating storage in place. All methods run on the owning
// thread.
type ShadowRegistry interface {
	TrackFile(texture *metadata.Texture, fileName string)
	TrackImage(texture *metadata.Texture, image *metadata.ImageData)
	TrackRaw(texture *metadata.Texture, pixels []uint8, width, height uint32, channels uint8)
	TrackString(texture *metadata.Texture, text string, spec fonts.FontSpec)
	SetParameters(texture *metadata.Texture, params metadata.TextureParams)
	Untrack(texture *metadata.Texture)
	// ReloadAll regenerates every tracked texture. Records that cannot be
	// regenerated are skipped, not fatal. A reload triggered while one is
	// already running is a no-op.
	ReloadAll() error
	Len() int
}

// NullShadowRegistry is the inert strategy for platforms that never lose the
// GPU context. No tracking overhead is paid; the contract still holds as a
// no-op.
type NullShadowRegistry struct{}

func NewNullShadowRegistry() *NullShadowRegistry { return &NullShadowRegistry{} }

func (*NullShadowRegistry) TrackFile(*metadata.Texture, string) {}
func (*NullShadowRegistry) TrackImage(*metadata.Texture, *metadata.ImageData) {}
func (*NullShadowRegistry) TrackRaw(*metadata.Texture, []uint8, uint32, uint32, uint8) {}
func (*NullShadowRegistry) TrackString(*metadata.Texture, string, fonts.FontSpec) {}
func (*NullShadowRegistry) SetParameters(*metadata.Texture, metadata.TextureParams) {}
func (*NullShadowRegistry) Untrack(*metadata.Texture) {}
func (*NullShadowRegistry) ReloadAll() error { return nil }
func (*NullShadowRegistry) Len() int { return 0 }

// ActiveShadowRegistry keeps one record per live texture, keyed by the
// texture's handle.
type ActiveShadowRegistry struct {
	device     renderer.Device
	decoder    assets.Decoder
	rasterizer fonts.Rasterizer

	records     map[uuid.UUID]*shadowRecord
	isReloading bool
}

func NewActiveShadowRegistry(device renderer.Device, decoder assets.Decoder, rasterizer fonts.Rasterizer) *ActiveShadowRegistry {
	return &ActiveShadowRegistry{
		device:     device,
		decoder:    decoder,
		rasterizer: rasterizer,
		records:    make(map[uuid.UUID]*shadowRecord),
	}
}

// find returns the record for a texture, creating it when missing.
func (r *ActiveShadowRegistry) find(texture *metadata.Texture) *shadowRecord {
	if record, ok := r.records[texture.Handle]; ok {
		return record
	}
	record := &shadowRecord{texture: texture}
	r.records[texture.Handle] = record
	return record
}

func (r *ActiveShadowRegistry) TrackFile(texture *metadata.Texture, fileName string) {
	if texture == nil {
		return
	}
	record := r.find(texture)
	record.kind = sourceFile
	record.fileName = fileName
}

func (r *ActiveShadowRegistry) TrackImage(texture *metadata.Texture, image *metadata.ImageData) {
	if texture == nil || image == nil {
		return
	}
	record := r.find(texture)
	record.kind = sourceDecodedImage
	record.image = image
}

func (r *ActiveShadowRegistry) TrackRaw(texture *metadata.Texture, pixels []uint8, width, height uint32, channels uint8) {
	if texture == nil {
		return
	}
	record := r.find(texture)
	record.kind = sourceRawBuffer
	record.image = &metadata.ImageData{
		Pixels:       pixels,
		Width:        width,
		Height:       height,
		ChannelCount: channels,
		Format:       "raw",
	}
}

func (r *ActiveShadowRegistry) TrackString(texture *metadata.Texture, text string, spec fonts.FontSpec) {
	if texture == nil {
		return
	}
	record := r.find(texture)
	record.kind = sourceGeneratedText
	record.text = text
	record.fontSpec = spec
}

// SetParameters overrides any previously recorded parameters for the
// texture. Idempotent.
func (r *ActiveShadowRegistry) SetParameters(texture *metadata.Texture, params metadata.TextureParams) {
	if texture == nil {
		return
	}
	record, ok := r.records[texture.Handle]
	if !ok {
		return
	}
	record.params = params
	record.hasParams = true
}

func (r *ActiveShadowRegistry) Untrack(texture *metadata.Texture) {
	if texture == nil {
		return
	}
	delete(r.records, texture.Handle)
}

func (r *ActiveShadowRegistry) Len() int {
	return len(r.records)
}

func (r *ActiveShadowRegistry) ReloadAll() error {
	if r.isReloading {
		core.LogDebug("shadow registry: reload already in progress, skipping nested trigger")
		return nil
	}
	if len(r.records) == 0 {
		return nil
	}
	r.isReloading = true
	defer func() { r.isReloading = false }()

	reloaded, skipped := 0, 0
	for _, record := range r.records {
		if err := r.reload(record); err != nil {
			core.LogWarn("shadow registry: could not regenerate %s texture '%s': %s",
				record.kind.String(), record.texture.Name, err.Error())
			skipped++
			continue
		}
		reloaded++
	}
	core.LogInfo("shadow registry: regenerated %d textures, skipped %d", reloaded, skipped)
	return nil
}

// reload re-derives the pixel data for one record and uploads it into the
// same texture object. The handle stays; the generation bumps.
func (r *ActiveShadowRegistry) reload(record *shadowRecord) error {
	var image *metadata.ImageData
	var err error

	switch record.kind {
	case sourceFile:
		image, err = r.decoder.Decode(record.fileName)
	case sourceRawBuffer, sourceDecodedImage:
		image = record.image
	case sourceGeneratedText:
		if r.rasterizer == nil {
			err = fmt.Errorf("no rasterizer configured")
		} else {
			image, err = r.rasterizer.RenderString(record.text, record.fontSpec)
		}
	default:
		err = fmt.Errorf("record has no source")
	}
	if err != nil {
		return err
	}
	if image == nil {
		return fmt.Errorf("no pixel data")
	}

	if err := r.device.TextureCreate(image, record.texture); err != nil {
		return err
	}
	if record.hasParams {
		if err := r.device.TextureSetParameters(record.texture, record.params); err != nil {
			return err
		}
		record.texture.Params = record.params
	}
	return nil
}
