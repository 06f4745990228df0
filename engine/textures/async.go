package textures

import (
	"sync"
	"sync/atomic"

	"github.com/PandaBlessing/cocos2d-x/engine/assets"
	"github.com/PandaBlessing/cocos2d-x/engine/containers"
	"github.com/PandaBlessing/cocos2d-x/engine/core"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

// asyncRequest is one pending decode. Requests for a key already in flight
// park their callbacks on the existing request, so a key decodes at most
// once no matter how many callers asked.
type asyncRequest struct {
	key        string
	sourcePath string
	callbacks  []Callback
}

// decodedImage is the loader thread's output: the original request plus the
// decoded pixels, or a failure sentinel with image == nil.
type decodedImage struct {
	request *asyncRequest
	image   *metadata.ImageData
	err     error
}

// imageLoader is the two-stage producer/consumer pipeline between the owning
// thread and the single loader goroutine. Decode requests flow out through
// pending; decoded results flow back through results and are dispatched by
// pump() on the owning thread, where GPU uploads and callbacks are safe.
type imageLoader struct {
	cache *TextureCache

	// pending is pushed by the owning thread and popped by the loader.
	// sleepCond (on queueMutex) wakes the idle loader.
	queueMutex    sync.Mutex
	sleepCond     *sync.Cond
	pending       *containers.RingQueue[*asyncRequest]
	inFlight      map[string]*asyncRequest
	needQuit      bool
	workerStarted bool

	// results is pushed by the loader and drained wholesale by pump().
	resultMutex sync.Mutex
	results     *containers.RingQueue[*decodedImage]

	workerWG      sync.WaitGroup
	asyncRefCount atomic.Int32
	closed        atomic.Bool
	degraded      atomic.Bool

	// current is the request being decoded right now. Touched only by the
	// loader goroutine; read by its own recover handler.
	current *asyncRequest
}

func newImageLoader(cache *TextureCache) *imageLoader {
	loader := &imageLoader{
		cache:    cache,
		pending:  containers.NewRingQueue[*asyncRequest](16),
		inFlight: make(map[string]*asyncRequest),
		results:  containers.NewRingQueue[*decodedImage](16),
	}
	loader.sleepCond = sync.NewCond(&loader.queueMutex)
	return loader
}

func (l *imageLoader) pendingCount() int32 {
	return l.asyncRefCount.Load()
}

// enqueue implements AddImageAsync. The fast path for an already-cached key
// invokes the callback synchronously and spawns no decode work. Otherwise
// the request joins an in-flight decode for the same key or starts a new
// one, lazily bringing the loader goroutine up on first use.
func (l *imageLoader) enqueue(path string, callback Callback) error {
	if l.closed.Load() {
		return core.ErrCacheShutdown
	}
	if l.degraded.Load() {
		return core.ErrLoaderThreadDown
	}

	key := assets.NormalizeKey(path)
	if texture := l.cache.TextureForKey(key); texture != nil {
		if callback != nil {
			callback(texture)
		}
		return nil
	}

	l.queueMutex.Lock()
	if l.needQuit {
		l.queueMutex.Unlock()
		return core.ErrCacheShutdown
	}
	if request, ok := l.inFlight[key]; ok {
		request.callbacks = append(request.callbacks, callback)
		l.asyncRefCount.Add(1)
		l.queueMutex.Unlock()
		return nil
	}

	request := &asyncRequest{
		key:        key,
		sourcePath: path,
		callbacks:  []Callback{callback},
	}
	l.inFlight[key] = request
	l.pending.Enqueue(request)
	l.asyncRefCount.Add(1)

	if !l.workerStarted {
		l.workerStarted = true
		l.workerWG.Add(1)
		go l.loadImages()
	}
	l.sleepCond.Signal()
	l.queueMutex.Unlock()
	return nil
}

// loadImages is the loader goroutine: block until work or quit, decode one
// request at a time in FIFO order, push the result. A decode failure is
// reported through a sentinel result; only a panic takes the loader down,
// and that degrades the async path alone, with the outstanding requests
// turned into failure results for the owning thread to deliver.
func (l *imageLoader) loadImages() {
	defer l.workerWG.Done()
	defer func() {
		if r := recover(); r != nil {
			core.LogError("texture loader thread crashed: %v", r)
			l.degraded.Store(true)
			l.abortOutstanding()
		}
	}()

	for {
		l.queueMutex.Lock()
		for l.pending.IsEmpty() && !l.needQuit {
			l.sleepCond.Wait()
		}
		if l.needQuit {
			l.queueMutex.Unlock()
			return
		}
		request, _ := l.pending.Dequeue()
		l.current = request
		l.queueMutex.Unlock()

		image, err := l.cache.decoder.Decode(request.sourcePath)
		if err != nil {
			core.LogError("async decode of '%s' failed: %s", request.key, err.Error())
			image = nil
		}

		l.resultMutex.Lock()
		l.results.Enqueue(&decodedImage{request: request, image: image, err: err})
		l.resultMutex.Unlock()
		l.current = nil
	}
}

// pump drains the whole result queue without blocking. Per result it creates
// the GPU resource, registers cache and shadow entries, and fires callbacks.
// Owning thread only.
func (l *imageLoader) pump() {
	for {
		l.resultMutex.Lock()
		result, ok := l.results.Dequeue()
		l.resultMutex.Unlock()
		if !ok {
			return
		}
		l.dispatch(result)
	}
}

func (l *imageLoader) dispatch(result *decodedImage) {
	request := result.request

	l.queueMutex.Lock()
	delete(l.inFlight, request.key)
	callbacks := request.callbacks
	l.queueMutex.Unlock()

	var final *metadata.Texture
	if result.image != nil {
		// A synchronous AddImage may have raced this decode in; the first
		// writer wins and the late pixels are discarded.
		if existing := l.cache.TextureForKey(request.key); existing != nil {
			final = existing
		} else {
			texture := metadata.NewTexture(request.key)
			if err := l.cache.device.TextureCreate(result.image, texture); err != nil {
				core.LogError("failed to create async texture '%s': %s", request.key, err.Error())
			} else {
				winner, inserted := l.cache.insert(request.key, texture)
				if inserted {
					l.cache.registry.TrackFile(texture, request.sourcePath)
					l.cache.watchSource(request.key, request.sourcePath)
				} else {
					_ = l.cache.device.TextureDestroy(texture)
				}
				final = winner
			}
		}
	}

	l.invoke(callbacks, final)
}

func (l *imageLoader) invoke(callbacks []Callback, texture *metadata.Texture) {
	for _, callback := range callbacks {
		l.asyncRefCount.Add(-1)
		if callback != nil {
			callback(texture)
		}
	}
}

// abortOutstanding converts the in-progress request and everything still
// pending into failure results. Runs in the crashed loader's recover
// handler; the callbacks themselves stay on the owning thread because
// delivery goes through pump or shutdown like any other result.
func (l *imageLoader) abortOutstanding() {
	l.queueMutex.Lock()
	aborted := make([]*asyncRequest, 0, 1)
	if l.current != nil {
		aborted = append(aborted, l.current)
		l.current = nil
	}
	for {
		request, ok := l.pending.Dequeue()
		if !ok {
			break
		}
		aborted = append(aborted, request)
	}
	l.queueMutex.Unlock()

	l.resultMutex.Lock()
	for _, request := range aborted {
		l.results.Enqueue(&decodedImage{request: request, err: core.ErrLoaderThreadDown})
	}
	l.resultMutex.Unlock()
}

// shutdown stops the loader, joins it, and settles every outstanding request
// by invoking its callbacks with nil. Requests are never silently dropped.
func (l *imageLoader) shutdown() {
	if l.closed.Swap(true) {
		return
	}

	l.queueMutex.Lock()
	l.needQuit = true
	l.sleepCond.Signal()
	started := l.workerStarted
	l.queueMutex.Unlock()

	if started {
		l.workerWG.Wait()
	}

	l.failAllPending()
}

// failAllPending settles not-yet-started requests and residual results with
// a nil texture.
func (l *imageLoader) failAllPending() {
	l.queueMutex.Lock()
	orphans := make([]*asyncRequest, 0, len(l.inFlight))
	for {
		request, ok := l.pending.Dequeue()
		if !ok {
			break
		}
		orphans = append(orphans, request)
		delete(l.inFlight, request.key)
	}
	l.queueMutex.Unlock()

	for _, request := range orphans {
		l.invoke(request.callbacks, nil)
	}

	for {
		l.resultMutex.Lock()
		result, ok := l.results.Dequeue()
		l.resultMutex.Unlock()
		if !ok {
			return
		}
		l.queueMutex.Lock()
		delete(l.inFlight, result.request.key)
		callbacks := result.request.callbacks
		l.queueMutex.Unlock()
		l.invoke(callbacks, nil)
	}
}
