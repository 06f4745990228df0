package core

import (
	"errors"
)

var (
	// ErrDecodeFailed means source bytes could not be interpreted as an image.
	ErrDecodeFailed = errors.New("image decode failed")
	// ErrTextureCreateFailed means the graphics device rejected the upload.
	ErrTextureCreateFailed = errors.New("texture creation failed")
	// ErrLoaderThreadDown means the async load path is degraded; synchronous
	// loads keep working.
	ErrLoaderThreadDown = errors.New("texture loader thread is not running")
	// ErrCacheShutdown means the cache no longer accepts work.
	ErrCacheShutdown = errors.New("texture cache is shut down")
)
