package textures

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/PandaBlessing/cocos2d-x/engine/assets"
	"github.com/PandaBlessing/cocos2d-x/engine/core"
	"github.com/PandaBlessing/cocos2d-x/engine/fonts"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

// Callback receives the final texture of an async load, or nil when the load
// failed or the cache shut down first. It is invoked exactly once, always on
// the owning thread.
type Callback func(texture *metadata.Texture)

type CacheConfig struct {
	/** @brief The graphics backend textures are uploaded to. Required. */
	Device renderer.Device
	/** @brief Decodes image sources into pixel data. Required. */
	Decoder assets.Decoder
	/** @brief Renders string textures. Optional; AddStringTexture fails without it. */
	Rasterizer fonts.Rasterizer
	/** @brief Keeps reconstruction metadata so ReloadAllTextures can survive
	 * GPU context loss. Off means a no-op registry with zero overhead. */
	VolatileTracking bool
	/** @brief Watches texture source files for on-disk changes. Optional. */
	Watcher *assets.Manager
}

// TextureCache deduplicates GPU-bound textures by logical key. All methods
// except AddImageAsync's internal queue hand-off must run on the owning
// thread; Update must be called once per frame to dispatch async results.
type TextureCache struct {
	config *CacheConfig

	device     renderer.Device
	decoder    assets.Decoder
	rasterizer fonts.Rasterizer
	registry   ShadowRegistry
	watcher    *assets.Manager

	// Registered textures, keyed by normalized path or explicit key.
	mutex    sync.RWMutex
	textures map[string]*metadata.Texture

	loader *imageLoader
}

func New(config *CacheConfig) (*TextureCache, error) {
	if config == nil || config.Device == nil {
		err := fmt.Errorf("func New - config.Device is required")
		core.LogError(err.Error())
		return nil, err
	}
	if config.Decoder == nil {
		err := fmt.Errorf("func New - config.Decoder is required")
		core.LogError(err.Error())
		return nil, err
	}

	tc := &TextureCache{
		config:     config,
		device:     config.Device,
		decoder:    config.Decoder,
		rasterizer: config.Rasterizer,
		watcher:    config.Watcher,
		textures:   make(map[string]*metadata.Texture),
	}
	if config.VolatileTracking {
		tc.registry = NewActiveShadowRegistry(config.Device, config.Decoder, config.Rasterizer)
	} else {
		tc.registry = NewNullShadowRegistry()
	}
	tc.loader = newImageLoader(tc)

	return tc, nil
}

// Registry exposes the shadow registry paired with this cache.
func (tc *TextureCache) Registry() ShadowRegistry {
	return tc.registry
}

// Update is the per-frame dispatcher tick: it dispatches completed async
// loads and services hot-reload events. Must run on the owning thread.
func (tc *TextureCache) Update() {
	tc.loader.pump()
	tc.serviceHotReload()
}

// Shutdown stops the loader thread and invokes every outstanding async
// callback exactly once with a nil texture. The cache accepts no new async
// work afterwards; registered textures stay valid.
func (tc *TextureCache) Shutdown() error {
	tc.loader.shutdown()
	return nil
}

// AddImage returns the texture registered for the given file path, decoding
// and uploading it inline on a cache miss. Repeated calls with the same path
// return the identical instance.
func (tc *TextureCache) AddImage(path string) (*metadata.Texture, error) {
	key := assets.NormalizeKey(path)
	if t := tc.TextureForKey(key); t != nil {
		return t, nil
	}

	img, err := tc.decoder.Decode(path)
	if err != nil {
		core.LogError("failed to decode image '%s': %s", path, err.Error())
		return nil, fmt.Errorf("add image '%s': %w", key, core.ErrDecodeFailed)
	}

	texture := metadata.NewTexture(key)
	if err := tc.device.TextureCreate(img, texture); err != nil {
		core.LogError("failed to create texture '%s': %s", key, err.Error())
		return nil, fmt.Errorf("add image '%s': %w", key, core.ErrTextureCreateFailed)
	}

	winner, inserted := tc.insert(key, texture)
	if inserted {
		tc.registry.TrackFile(texture, path)
		tc.watchSource(key, path)
	} else {
		// A racing creation for the same key won; drop this upload.
		_ = tc.device.TextureDestroy(texture)
	}
	return winner, nil
}

// AddImageAsync behaves like AddImage but performs the decode on the loader
// thread. See imageLoader.enqueue for the fast path and coalescing rules.
func (tc *TextureCache) AddImageAsync(path string, callback Callback) error {
	return tc.loader.enqueue(path, callback)
}

// AddUIImage creates a texture from already-decoded pixel data. A non-empty
// key registers it in the cache (returning any incumbent for that key); an
// empty key always creates a fresh, cache-invisible texture. Either way the
// texture is shadow-tracked for context-loss recovery.
func (tc *TextureCache) AddUIImage(img *metadata.ImageData, key string) (*metadata.Texture, error) {
	if img == nil {
		return nil, fmt.Errorf("add ui image: nil image")
	}

	if key != "" {
		if t := tc.TextureForKey(key); t != nil {
			return t, nil
		}
	}

	texture := metadata.NewTexture(key)
	if err := tc.device.TextureCreate(img, texture); err != nil {
		core.LogError("failed to create texture for ui image '%s': %s", key, err.Error())
		return nil, fmt.Errorf("add ui image '%s': %w", key, core.ErrTextureCreateFailed)
	}

	if key == "" {
		tc.registry.TrackImage(texture, img)
		return texture, nil
	}

	winner, inserted := tc.insert(key, texture)
	if inserted {
		tc.registry.TrackImage(texture, img)
	} else {
		_ = tc.device.TextureDestroy(texture)
	}
	return winner, nil
}

// AddRawTexture creates a texture straight from packed pixels, registered
// under the given key when non-empty.
func (tc *TextureCache) AddRawTexture(pixels []uint8, width, height uint32, channels uint8, key string) (*metadata.Texture, error) {
	img := &metadata.ImageData{
		Pixels:       pixels,
		Width:        width,
		Height:       height,
		ChannelCount: channels,
		Format:       "raw",
	}

	if key != "" {
		if t := tc.TextureForKey(key); t != nil {
			return t, nil
		}
	}

	texture := metadata.NewTexture(key)
	if err := tc.device.TextureCreate(img, texture); err != nil {
		core.LogError("failed to create raw texture '%s': %s", key, err.Error())
		return nil, fmt.Errorf("add raw texture '%s': %w", key, core.ErrTextureCreateFailed)
	}

	if key == "" {
		tc.registry.TrackRaw(texture, pixels, width, height, channels)
		return texture, nil
	}

	winner, inserted := tc.insert(key, texture)
	if inserted {
		tc.registry.TrackRaw(texture, pixels, width, height, channels)
	} else {
		_ = tc.device.TextureDestroy(texture)
	}
	return winner, nil
}

// AddStringTexture rasterizes text into a texture. An empty key derives one
// from the face, size and text so repeated renders of the same string dedupe.
func (tc *TextureCache) AddStringTexture(text string, spec fonts.FontSpec, key string) (*metadata.Texture, error) {
	if tc.rasterizer == nil {
		return nil, fmt.Errorf("add string texture: no rasterizer configured")
	}
	if key == "" {
		key = fmt.Sprintf("text/%s/%d/%s", spec.Face, spec.Size, text)
	}
	if t := tc.TextureForKey(key); t != nil {
		return t, nil
	}

	img, err := tc.rasterizer.RenderString(text, spec)
	if err != nil {
		core.LogError("failed to rasterize string texture '%s': %s", key, err.Error())
		return nil, fmt.Errorf("add string texture '%s': %w", key, core.ErrDecodeFailed)
	}

	texture := metadata.NewTexture(key)
	if err := tc.device.TextureCreate(img, texture); err != nil {
		core.LogError("failed to create string texture '%s': %s", key, err.Error())
		return nil, fmt.Errorf("add string texture '%s': %w", key, core.ErrTextureCreateFailed)
	}

	winner, inserted := tc.insert(key, texture)
	if inserted {
		tc.registry.TrackString(texture, text, spec)
	} else {
		_ = tc.device.TextureDestroy(texture)
	}
	return winner, nil
}

// TextureForKey returns the registered texture or nil. Pure lookup.
func (tc *TextureCache) TextureForKey(key string) *metadata.Texture {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.textures[key]
}

// SetTextureParameters applies sampling/wrap state and records it so it can
// be reapplied after a reload.
func (tc *TextureCache) SetTextureParameters(texture *metadata.Texture, params metadata.TextureParams) error {
	if texture == nil {
		return fmt.Errorf("set texture parameters: nil texture")
	}
	if err := tc.device.TextureSetParameters(texture, params); err != nil {
		return err
	}
	texture.Params = params
	tc.registry.SetParameters(texture, params)
	return nil
}

// PendingAsyncCount reports how many async callbacks have not fired yet.
func (tc *TextureCache) PendingAsyncCount() int32 {
	return tc.loader.pendingCount()
}

// RemoveTextureForKey drops the cache's reference for a key. The texture
// survives while other holders retain it.
func (tc *TextureCache) RemoveTextureForKey(key string) {
	tc.mutex.Lock()
	texture, ok := tc.textures[key]
	if ok {
		delete(tc.textures, key)
	}
	tc.mutex.Unlock()

	if ok {
		tc.releaseTexture(texture)
	}
}

// RemoveTexture drops the cache's reference for a texture located by reverse
// lookup of its handle.
func (tc *TextureCache) RemoveTexture(texture *metadata.Texture) {
	if texture == nil {
		return
	}

	tc.mutex.Lock()
	var foundKey string
	found := false
	for key, t := range tc.textures {
		if t.Handle == texture.Handle {
			foundKey = key
			found = true
			break
		}
	}
	if found {
		delete(tc.textures, foundKey)
	}
	tc.mutex.Unlock()

	if found {
		tc.releaseTexture(texture)
	}
}

// RemoveUnusedTextures evicts every entry the cache is the sole owner of.
// Entries with external holders stay registered.
func (tc *TextureCache) RemoveUnusedTextures() {
	tc.mutex.Lock()
	// Collect first; deleting while ranging the map is asking for trouble.
	unused := make([]string, 0)
	for key, texture := range tc.textures {
		if texture.RetainCount() <= 1 {
			unused = append(unused, key)
		}
	}
	removed := make([]*metadata.Texture, 0, len(unused))
	for _, key := range unused {
		removed = append(removed, tc.textures[key])
		delete(tc.textures, key)
	}
	tc.mutex.Unlock()

	for _, texture := range removed {
		core.LogDebug("removing unused texture '%s'", texture.Name)
		tc.releaseTexture(texture)
	}
}

// RemoveAllTextures unconditionally releases every entry. Externally retained
// textures stay valid through their own references but are no longer
// cache-visible.
func (tc *TextureCache) RemoveAllTextures() {
	tc.mutex.Lock()
	removed := maps.Values(tc.textures)
	tc.textures = make(map[string]*metadata.Texture)
	tc.mutex.Unlock()

	for _, texture := range removed {
		tc.releaseTexture(texture)
	}
}

// ReloadAllTextures regenerates the GPU-side storage of every tracked
// texture from its recorded source. Texture identities are preserved.
func (tc *TextureCache) ReloadAllTextures() error {
	return tc.registry.ReloadAll()
}

// SnapshotTextures returns a point-in-time copy of the key mapping,
// independent of the live cache afterwards.
func (tc *TextureCache) SnapshotTextures() map[string]*metadata.Texture {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	snapshot := make(map[string]*metadata.Texture, len(tc.textures))
	for key, texture := range tc.textures {
		snapshot[key] = texture
	}
	return snapshot
}

// DumpCachedTextureInfo logs the cache contents with an estimated memory
// footprint per texture. Diagnostic only; the format is not a stable
// interface.
func (tc *TextureCache) DumpCachedTextureInfo() {
	snapshot := tc.SnapshotTextures()
	keys := maps.Keys(snapshot)
	slices.Sort(keys)

	var total uint64
	for _, key := range keys {
		texture := snapshot[key]
		bytes := texture.MemoryFootprint()
		total += bytes
		core.LogInfo("cached texture '%s': rc=%d handle=%s %dx%d @%dbpp => %d KB",
			key, texture.RetainCount(), texture.Handle.String(),
			texture.Width, texture.Height, texture.ChannelCount*8, bytes/1024)
	}
	core.LogInfo("texture cache: %d textures, estimated %d KB", len(keys), total/1024)
}

// insert registers a texture under a key. The first writer wins: if the key
// is already taken by a different texture, the incumbent is returned and the
// caller's texture is not registered.
func (tc *TextureCache) insert(key string, texture *metadata.Texture) (*metadata.Texture, bool) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if existing, ok := tc.textures[key]; ok {
		if existing != texture {
			core.LogDebug("texture '%s' already registered; keeping the first writer", key)
		}
		return existing, false
	}
	tc.textures[key] = texture
	return texture, true
}

// releaseTexture drops the cache's reference and destroys the texture when
// no holder remains. Destruction untracks the shadow record uniformly, so
// every removal path purges it.
func (tc *TextureCache) releaseTexture(texture *metadata.Texture) {
	if texture.Release() {
		tc.destroyTexture(texture)
	}
}

func (tc *TextureCache) destroyTexture(texture *metadata.Texture) {
	if err := tc.device.TextureDestroy(texture); err != nil {
		core.LogError("failed to destroy texture '%s': %s", texture.Name, err.Error())
	}
	tc.registry.Untrack(texture)
	if tc.watcher != nil {
		if resolver, ok := tc.decoder.(pathResolver); ok {
			tc.watcher.UnwatchFile(resolver.ResolvePath(texture.Name))
		} else {
			tc.watcher.UnwatchFile(texture.Name)
		}
	}
}

// pathResolver lets a decoder map cache keys back to on-disk locations for
// the file watcher.
type pathResolver interface {
	ResolvePath(path string) string
}

func (tc *TextureCache) watchSource(key, path string) {
	if tc.watcher == nil {
		return
	}
	diskPath := path
	if resolver, ok := tc.decoder.(pathResolver); ok {
		diskPath = resolver.ResolvePath(path)
	}
	if err := tc.watcher.WatchFile(key, diskPath); err != nil {
		core.LogWarn("failed to watch texture source '%s': %s", path, err.Error())
	}
}

func (tc *TextureCache) serviceHotReload() {
	if tc.watcher == nil {
		return
	}
	for {
		select {
		case key := <-tc.watcher.Changed():
			tc.reloadKey(key)
		default:
			return
		}
	}
}

// reloadKey re-decodes a texture's source file into the same texture object.
func (tc *TextureCache) reloadKey(key string) {
	texture := tc.TextureForKey(key)
	if texture == nil {
		return
	}
	img, err := tc.decoder.Decode(key)
	if err != nil {
		core.LogWarn("hot reload of '%s' failed: %s", key, err.Error())
		return
	}
	if err := tc.device.TextureCreate(img, texture); err != nil {
		core.LogWarn("hot reload upload of '%s' failed: %s", key, err.Error())
		return
	}
	if err := tc.device.TextureSetParameters(texture, texture.Params); err != nil {
		core.LogWarn("hot reload of '%s': reapplying parameters failed: %s", key, err.Error())
	}
	core.LogInfo("hot reloaded texture '%s' (generation %d)", key, texture.Generation)
}
