package textures

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PandaBlessing/cocos2d-x/engine/fonts"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

// loseContext simulates GPU context loss: every texture's device-side
// storage is invalidated while the objects stay alive.
func loseContext(device *renderer.SoftwareDevice, textures ...*metadata.Texture) {
	for _, texture := range textures {
		_ = device.TextureDestroy(texture)
	}
}

func TestReloadReconstructsFileTexture(t *testing.T) {
	cache, decoder, device := newTestCache(t)
	decoder.addImage("world/tile.png", 8, 8, 0x5A)

	texture, err := cache.AddImage("world/tile.png")
	require.NoError(t, err)
	handle := texture.Handle

	params := metadata.TextureParams{
		FilterMin: metadata.TextureFilterModeNearest,
		FilterMag: metadata.TextureFilterModeNearest,
		RepeatU:   metadata.TextureRepeatMirroredRepeat,
		RepeatV:   metadata.TextureRepeatMirroredRepeat,
	}
	require.NoError(t, cache.SetTextureParameters(texture, params))

	loseContext(device, texture)
	require.False(t, texture.Valid())

	require.NoError(t, cache.ReloadAllTextures())

	require.True(t, texture.Valid())
	require.Equal(t, handle, texture.Handle)
	require.Equal(t, params, texture.Params)

	fresh, err := decoder.Decode("world/tile.png")
	require.NoError(t, err)
	require.Equal(t, fresh.Pixels, device.TexturePixels(texture))
}

func TestReloadReconstructsImageAndRawTextures(t *testing.T) {
	cache, _, device := newTestCache(t)

	img := &metadata.ImageData{Pixels: []uint8{1, 2, 3, 4}, Width: 1, Height: 1, ChannelCount: 4}
	fromImage, err := cache.AddUIImage(img, "ui/icon")
	require.NoError(t, err)

	raw := []uint8{9, 9, 9, 9}
	fromRaw, err := cache.AddRawTexture(raw, 1, 1, 4, "gen/pixel")
	require.NoError(t, err)

	loseContext(device, fromImage, fromRaw)

	require.NoError(t, cache.ReloadAllTextures())

	require.True(t, fromImage.Valid())
	require.Equal(t, img.Pixels, device.TexturePixels(fromImage))
	require.True(t, fromRaw.Valid())
	require.Equal(t, raw, device.TexturePixels(fromRaw))
}

func TestReloadRerendersStringTexture(t *testing.T) {
	cache, _, device := newTestCache(t)
	rasterizer := cache.rasterizer.(*countingRasterizer)

	texture, err := cache.AddStringTexture("GAME OVER", fonts.FontSpec{Face: "debug"}, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, rasterizer.renders.Load())
	before := append([]uint8(nil), device.TexturePixels(texture)...)

	loseContext(device, texture)
	require.NoError(t, cache.ReloadAllTextures())

	require.EqualValues(t, 2, rasterizer.renders.Load())
	require.True(t, texture.Valid())
	require.Equal(t, before, device.TexturePixels(texture))
}

func TestReloadSkipsFailingRecords(t *testing.T) {
	cache, decoder, device := newTestCache(t)
	decoder.addImage("good.png", 2, 2, 1)
	decoder.addImage("gone.png", 2, 2, 2)

	good, err := cache.AddImage("good.png")
	require.NoError(t, err)
	gone, err := cache.AddImage("gone.png")
	require.NoError(t, err)

	// The second source disappears before the reload.
	decoder.mu.Lock()
	delete(decoder.images, "gone.png")
	decoder.mu.Unlock()

	loseContext(device, good, gone)

	// Partial success: the failing record is skipped, the rest regenerate.
	require.NoError(t, cache.ReloadAllTextures())
	require.True(t, good.Valid())
	require.False(t, gone.Valid())
}

func TestReloadEmptyRegistryIsNoop(t *testing.T) {
	cache, _, _ := newTestCache(t)
	require.NoError(t, cache.ReloadAllTextures())
}

func TestNestedReloadShortCircuits(t *testing.T) {
	cache, decoder, device := newTestCache(t)
	decoder.addImage("re.png", 2, 2, 3)

	texture, err := cache.AddImage("re.png")
	require.NoError(t, err)
	baseline := decoder.decodes.Load()

	// A reload triggered from inside a reload must be a no-op, not recurse.
	decoder.mu.Lock()
	decoder.onDecode = func(string) {
		_ = cache.ReloadAllTextures()
	}
	decoder.mu.Unlock()

	loseContext(device, texture)
	require.NoError(t, cache.ReloadAllTextures())

	require.True(t, texture.Valid())
	require.EqualValues(t, baseline+1, decoder.decodes.Load())
}

func TestUntrackOnEveryRemovalPath(t *testing.T) {
	cache, decoder, _ := newTestCache(t)
	decoder.addImage("u1.png", 2, 2, 1)
	decoder.addImage("u2.png", 2, 2, 2)
	decoder.addImage("u3.png", 2, 2, 3)

	_, err := cache.AddImage("u1.png")
	require.NoError(t, err)
	second, err := cache.AddImage("u2.png")
	require.NoError(t, err)
	_, err = cache.AddImage("u3.png")
	require.NoError(t, err)
	require.Equal(t, 3, cache.Registry().Len())

	cache.RemoveTextureForKey("u1.png")
	require.Equal(t, 2, cache.Registry().Len())

	cache.RemoveTexture(second)
	require.Equal(t, 1, cache.Registry().Len())

	cache.RemoveUnusedTextures()
	require.Equal(t, 0, cache.Registry().Len())
}

func TestShadowRecordSurvivesForExternallyHeld(t *testing.T) {
	cache, decoder, device := newTestCache(t)
	decoder.addImage("held.png", 2, 2, 8)

	held, err := cache.AddImage("held.png")
	require.NoError(t, err)
	held.Retain()

	// Eviction drops the cache reference, but the texture is alive and must
	// remain recoverable.
	cache.RemoveAllTextures()
	require.Equal(t, 1, cache.Registry().Len())

	loseContext(device, held)
	require.NoError(t, cache.ReloadAllTextures())
	require.True(t, held.Valid())
}

func TestNullRegistryIsInert(t *testing.T) {
	device := renderer.NewSoftwareDevice()
	decoder := newFakeDecoder()
	decoder.addImage("n.png", 2, 2, 4)

	cache, err := New(&CacheConfig{
		Device:           device,
		Decoder:          decoder,
		VolatileTracking: false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Shutdown() })

	texture, err := cache.AddImage("n.png")
	require.NoError(t, err)
	require.Equal(t, 0, cache.Registry().Len())

	// The contract still functions, as a no-op.
	require.NoError(t, cache.ReloadAllTextures())
	loseContext(device, texture)
	require.NoError(t, cache.ReloadAllTextures())
	require.False(t, texture.Valid())
}

func TestSetParametersIsIdempotentPerRecord(t *testing.T) {
	cache, decoder, device := newTestCache(t)
	decoder.addImage("pp.png", 2, 2, 5)

	texture, err := cache.AddImage("pp.png")
	require.NoError(t, err)

	first := metadata.TextureParams{FilterMin: metadata.TextureFilterModeNearest}
	second := metadata.DefaultTextureParams()
	require.NoError(t, cache.SetTextureParameters(texture, first))
	require.NoError(t, cache.SetTextureParameters(texture, second))

	loseContext(device, texture)
	require.NoError(t, cache.ReloadAllTextures())

	// The later record wins.
	require.Equal(t, second, texture.Params)
}
