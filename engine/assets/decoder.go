package assets

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	// Formats the stock decoder understands. The cache itself is agnostic;
	// it only routes paths and byte streams here.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

// Decoder turns image sources into raw pixel data. Implementations must be
// safe to call from the loader thread.
type Decoder interface {
	Decode(path string) (*metadata.ImageData, error)
	DecodeBytes(data []byte) (*metadata.ImageData, error)
}

// NormalizeKey canonicalizes a source path into the cache-key form. Two paths
// that normalize equally identify the same logical texture.
func NormalizeKey(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// ImageDecoder decodes through image.Decode with png/jpeg/gif/bmp/tiff/webp
// registered. BasePath, when set, is prepended to relative paths.
type ImageDecoder struct {
	BasePath string
}

func NewImageDecoder(basePath string) *ImageDecoder {
	return &ImageDecoder{BasePath: basePath}
}

// ResolvePath maps a cache key back to the on-disk location.
func (d *ImageDecoder) ResolvePath(path string) string {
	if d.BasePath == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.BasePath, path)
}

func (d *ImageDecoder) Decode(path string) (*metadata.ImageData, error) {
	file, err := os.Open(d.ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	defer file.Close()
	return d.decodeReader(path, file)
}

func (d *ImageDecoder) DecodeBytes(data []byte) (*metadata.ImageData, error) {
	return d.decodeReader("<memory>", bytes.NewReader(data))
}

func (d *ImageDecoder) decodeReader(name string, r io.Reader) (*metadata.ImageData, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return metadata.NewImageDataFromImage(img, format), nil
}
