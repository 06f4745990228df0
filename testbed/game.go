/*
Testbed exercising the texture subsystem without a GPU: it scans the assets
directory, loads everything through the async pipeline and keeps a frame
loop running so the owning-thread dispatcher gets ticked.
*/
package testbed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PandaBlessing/cocos2d-x/engine/assets"
	"github.com/PandaBlessing/cocos2d-x/engine/config"
	"github.com/PandaBlessing/cocos2d-x/engine/core"
	"github.com/PandaBlessing/cocos2d-x/engine/fonts"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
	"github.com/PandaBlessing/cocos2d-x/engine/textures"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
}

type TestGame struct {
	Config *config.Config

	device  *renderer.SoftwareDevice
	cache   *textures.TextureCache
	watcher *assets.Manager
}

func NewTestGame(configPath string) (*TestGame, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	core.SetLogLevel(cfg.LogLevel)

	return &TestGame{Config: cfg}, nil
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")

	g.device = renderer.NewSoftwareDevice()
	decoder := assets.NewImageDecoder(g.Config.AssetsDir)

	var rasterizer fonts.Rasterizer = fonts.NewBasicRasterizer()
	if g.Config.FontsDir != "" {
		if _, err := os.Stat(g.Config.FontsDir); err == nil {
			rasterizer = fonts.NewAtlasRasterizer(g.Config.FontsDir)
		}
	}

	if g.Config.Textures.HotReload {
		watcher, err := assets.NewManager()
		if err != nil {
			return fmt.Errorf("testbed: start asset watcher: %w", err)
		}
		g.watcher = watcher
	}

	cache, err := textures.New(&textures.CacheConfig{
		Device:           g.device,
		Decoder:          decoder,
		Rasterizer:       rasterizer,
		VolatileTracking: g.Config.Textures.VolatileTracking,
		Watcher:          g.watcher,
	})
	if err != nil {
		return err
	}
	g.cache = cache

	g.queueAssetLoads()

	if _, err := g.cache.AddStringTexture("texture cache testbed", fonts.FontSpec{Face: "debug", Size: 13}, "ui/banner"); err != nil {
		core.LogWarn("testbed: banner text not created: %s", err.Error())
	}
	return nil
}

// queueAssetLoads pushes every image under the assets directory through the
// async pipeline.
func (g *TestGame) queueAssetLoads() {
	entries, err := os.ReadDir(g.Config.AssetsDir)
	if err != nil {
		core.LogWarn("testbed: no assets directory at '%s'", g.Config.AssetsDir)
		return
	}

	queued := 0
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		name := entry.Name()
		err := g.cache.AddImageAsync(name, func(t *metadata.Texture) {
			if t == nil {
				core.LogWarn("testbed: load failed for '%s'", name)
				return
			}
			core.LogInfo("testbed: loaded '%s' (%dx%d)", name, t.Width, t.Height)
		})
		if err != nil {
			core.LogWarn("testbed: could not queue '%s': %s", name, err.Error())
			continue
		}
		queued++
	}
	core.LogInfo("testbed: queued %d async loads", queued)
}

// Run ticks the frame loop until the context is canceled.
func (g *TestGame) Run(ctx context.Context) error {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.cache.Update()
			frames++
			// Periodic cache report while idle.
			if frames%600 == 0 {
				g.cache.DumpCachedTextureInfo()
			}
		}
	}
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	if g.cache != nil {
		if err := g.cache.Shutdown(); err != nil {
			return err
		}
	}
	if g.watcher != nil {
		return g.watcher.Close()
	}
	return nil
}
