package textures

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PandaBlessing/cocos2d-x/engine/core"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

func TestAsyncLoadDelivers(t *testing.T) {
	cache, decoder, _ := newTestCache(t)
	decoder.addImage("async/ship.png", 4, 4, 0x11)

	var got atomic.Pointer[metadata.Texture]
	var fired atomic.Int32
	err := cache.AddImageAsync("async/ship.png", func(texture *metadata.Texture) {
		got.Store(texture)
		fired.Add(1)
	})
	require.NoError(t, err)

	waitFor(t, cache, func() bool { return fired.Load() == 1 })

	texture := got.Load()
	require.NotNil(t, texture)
	require.True(t, texture.Valid())
	require.Same(t, texture, cache.TextureForKey("async/ship.png"))
	require.EqualValues(t, 0, cache.PendingAsyncCount())
}

func TestAsyncFastPathForCachedKey(t *testing.T) {
	cache, decoder, _ := newTestCache(t)
	decoder.addImage("fast.png", 4, 4, 0x22)

	sync, err := cache.AddImage("fast.png")
	require.NoError(t, err)

	// The callback must fire synchronously, on this call, with the cached
	// instance, and no decode work may be spawned.
	var got *metadata.Texture
	require.NoError(t, cache.AddImageAsync("fast.png", func(texture *metadata.Texture) {
		got = texture
	}))
	require.Same(t, sync, got)
	require.EqualValues(t, 1, decoder.decodes.Load())
	require.EqualValues(t, 0, cache.PendingAsyncCount())
}

func TestAsyncSameKeyCoalesces(t *testing.T) {
	cache, decoder, _ := newTestCache(t)
	decoder.addImage("co.png", 4, 4, 0x33)
	gate := decoder.gate("co.png")

	var first, second atomic.Pointer[metadata.Texture]
	var fired atomic.Int32
	require.NoError(t, cache.AddImageAsync("co.png", func(texture *metadata.Texture) {
		first.Store(texture)
		fired.Add(1)
	}))
	require.NoError(t, cache.AddImageAsync("co.png", func(texture *metadata.Texture) {
		second.Store(texture)
		fired.Add(1)
	}))
	require.EqualValues(t, 2, cache.PendingAsyncCount())

	close(gate.release)
	waitFor(t, cache, func() bool { return fired.Load() == 2 })

	require.NotNil(t, first.Load())
	require.Same(t, first.Load(), second.Load())
	require.EqualValues(t, 1, decoder.decodes.Load())
	require.EqualValues(t, 0, cache.PendingAsyncCount())
}

func TestAsyncSyncRaceFirstWriterWins(t *testing.T) {
	cache, decoder, _ := newTestCache(t)
	decoder.addImage("race.png", 4, 4, 0x44)
	gate := decoder.gate("race.png")

	var got atomic.Pointer[metadata.Texture]
	var fired atomic.Int32
	require.NoError(t, cache.AddImageAsync("race.png", func(texture *metadata.Texture) {
		got.Store(texture)
		fired.Add(1)
	}))

	// Wait for the loader to actually sit inside the gated decode, then let
	// the synchronous path win the insert.
	<-gate.entered
	winner, err := cache.AddImage("race.png")
	require.NoError(t, err)

	close(gate.release)
	waitFor(t, cache, func() bool { return fired.Load() == 1 })

	// The async caller receives the winning instance; its own decode result
	// was discarded.
	require.Same(t, winner, got.Load())
	require.Same(t, winner, cache.TextureForKey("race.png"))
}

func TestShutdownDrainsOutstandingCallbacks(t *testing.T) {
	cache, decoder, _ := newTestCache(t)
	decoder.addImage("s1.png", 2, 2, 1)
	decoder.addImage("s2.png", 2, 2, 2)
	decoder.addImage("s3.png", 2, 2, 3)
	gate := decoder.gate("s1.png")

	var fired atomic.Int32
	var nonNil atomic.Int32
	callback := func(texture *metadata.Texture) {
		fired.Add(1)
		if texture != nil {
			nonNil.Add(1)
		}
	}
	require.NoError(t, cache.AddImageAsync("s1.png", callback))
	require.NoError(t, cache.AddImageAsync("s2.png", callback))
	require.NoError(t, cache.AddImageAsync("s3.png", callback))
	require.EqualValues(t, 3, cache.PendingAsyncCount())

	// Unblock the loader and shut down without ever pumping: every callback
	// still fires exactly once, with nil.
	close(gate.release)
	require.NoError(t, cache.Shutdown())

	require.EqualValues(t, 3, fired.Load())
	require.EqualValues(t, 0, nonNil.Load())
	require.EqualValues(t, 0, cache.PendingAsyncCount())

	require.ErrorIs(t, cache.AddImageAsync("s1.png", nil), core.ErrCacheShutdown)
}

func TestAsyncDecodeFailureDeliversNil(t *testing.T) {
	cache, _, _ := newTestCache(t)

	var fired atomic.Int32
	var got atomic.Pointer[metadata.Texture]
	require.NoError(t, cache.AddImageAsync("nope.png", func(texture *metadata.Texture) {
		got.Store(texture)
		fired.Add(1)
	}))

	waitFor(t, cache, func() bool { return fired.Load() == 1 })
	require.Nil(t, got.Load())
	require.Nil(t, cache.TextureForKey("nope.png"))
	require.EqualValues(t, 0, cache.PendingAsyncCount())
}

func TestLoaderPanicDegradesAsyncOnly(t *testing.T) {
	cache, decoder, _ := newTestCache(t)
	decoder.mu.Lock()
	decoder.panics["boom.png"] = true
	decoder.mu.Unlock()
	decoder.addImage("fine.png", 2, 2, 7)

	var fired atomic.Int32
	require.NoError(t, cache.AddImageAsync("boom.png", func(texture *metadata.Texture) {
		require.Nil(t, texture)
		fired.Add(1)
	}))
	waitFor(t, cache, func() bool { return fired.Load() == 1 })

	// The async path is down for good ...
	deadline := time.Now().Add(3 * time.Second)
	for {
		err := cache.AddImageAsync("fine.png", nil)
		if err != nil {
			require.ErrorIs(t, err, core.ErrLoaderThreadDown)
			break
		}
		require.True(t, time.Now().Before(deadline), "loader never reported degraded")
		time.Sleep(time.Millisecond)
	}

	// ... but the synchronous path keeps working.
	texture, err := cache.AddImage("fine.png")
	require.NoError(t, err)
	require.True(t, texture.Valid())
}

func TestLoaderCrashDeliversCallbacksOnOwningThread(t *testing.T) {
	cache, decoder, _ := newTestCache(t)
	decoder.mu.Lock()
	decoder.panics["boom.png"] = true
	decoder.mu.Unlock()

	var fired atomic.Int32
	var got atomic.Pointer[metadata.Texture]
	require.NoError(t, cache.AddImageAsync("boom.png", func(texture *metadata.Texture) {
		got.Store(texture)
		fired.Add(1)
	}))

	// Wait until the crash is observable, without ever pumping.
	deadline := time.Now().Add(3 * time.Second)
	for {
		err := cache.AddImageAsync("spare.png", nil)
		if err != nil {
			require.ErrorIs(t, err, core.ErrLoaderThreadDown)
			break
		}
		require.True(t, time.Now().Before(deadline), "loader never reported degraded")
		time.Sleep(time.Millisecond)
	}

	// The loader is down but nothing may fire until the owning thread
	// runs the dispatcher.
	require.EqualValues(t, 0, fired.Load())

	waitFor(t, cache, func() bool { return fired.Load() == 1 })
	require.Nil(t, got.Load())
}

func TestPumpIsSafeWithNoWork(t *testing.T) {
	cache, _, _ := newTestCache(t)
	// Must return immediately and never block.
	done := make(chan struct{})
	go func() {
		cache.Update()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Update blocked with an empty pipeline")
	}
}
