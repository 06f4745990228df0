package assets

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/PandaBlessing/cocos2d-x/engine/core"
)

// Manager watches the source files of loaded textures and reports changes so
// the owner can re-decode them in place. Events are delivered as normalized
// cache keys on Changed(); the owner drains that channel from its frame loop.
type Manager struct {
	// watched maps an absolute on-disk path to the cache key it was
	// registered under. dirRefs counts watched files per parent directory
	// so the fsnotify watch is dropped when the last one goes away.
	watched map[string]string
	dirRefs map[string]int
	mutex   sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changed  chan string
}

func NewManager() (*Manager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		watched:  make(map[string]string),
		dirRefs:  make(map[string]int),
		fsnotify: fsWatch,
		changed:  make(chan string, 64),
		done:     make(chan struct{}),
	}
	go m.start()

	return m, nil
}

// Changed delivers the cache keys of source files modified on disk.
func (m *Manager) Changed() <-chan string {
	return m.changed
}

// WatchFile starts watching the file behind a cache key. Watching the parent
// directory instead of the file keeps editors that replace-on-save covered.
func (m *Manager) WatchFile(key, path string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.isClosed {
		return errors.New("asset manager already closed")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	_, known := m.watched[abs]
	if !known && m.dirRefs[dir] == 0 {
		if err := m.fsnotify.Add(dir); err != nil {
			return err
		}
	}
	m.watched[abs] = key
	if !known {
		m.dirRefs[dir]++
	}
	return nil
}

// UnwatchFile stops reporting changes for a cache key's source file. The
// parent directory watch is released once its last watched file is gone.
func (m *Manager) UnwatchFile(path string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	if _, ok := m.watched[abs]; !ok {
		return
	}
	delete(m.watched, abs)

	dir := filepath.Dir(abs)
	if m.dirRefs[dir]--; m.dirRefs[dir] <= 0 {
		delete(m.dirRefs, dir)
		_ = m.fsnotify.Remove(dir)
	}
}

func (m *Manager) start() {
	for {
		select {
		case event, ok := <-m.fsnotify.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			m.mutex.RLock()
			key, watched := m.watched[abs]
			m.mutex.RUnlock()
			if !watched {
				continue
			}
			select {
			case m.changed <- key:
			default:
				core.LogWarn("asset manager: change event dropped for '%s'", key)
			}
		case err, ok := <-m.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset manager: watcher error: %s", err.Error())
		case <-m.done:
			return
		}
	}
}

func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.isClosed {
		return nil
	}
	m.isClosed = true
	close(m.done)
	return m.fsnotify.Close()
}
