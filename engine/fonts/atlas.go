package fonts

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/fzipp/bmfont"

	"github.com/PandaBlessing/cocos2d-x/engine/core"
	"github.com/PandaBlessing/cocos2d-x/engine/renderer/metadata"
)

type kerningPair struct {
	first  rune
	second rune
}

type atlasFont struct {
	lineHeight int
	base       int
	glyphs     map[rune]bmfont.Char
	kernings   map[kerningPair]int
	// page id -> decoded page sheet
	pages map[int]image.Image
}

// AtlasRasterizer renders strings from BMFont (.fnt) glyph atlases. Fonts are
// looked up by face name under FontsPath and cached after the first load.
type AtlasRasterizer struct {
	FontsPath string

	mutex  sync.Mutex
	loaded map[string]*atlasFont
}

func NewAtlasRasterizer(fontsPath string) *AtlasRasterizer {
	return &AtlasRasterizer{
		FontsPath: fontsPath,
		loaded:    make(map[string]*atlasFont),
	}
}

func (r *AtlasRasterizer) RenderString(text string, spec FontSpec) (*metadata.ImageData, error) {
	if text == "" {
		return nil, fmt.Errorf("rasterize: empty string")
	}

	fnt, err := r.font(spec.Face)
	if err != nil {
		return nil, err
	}

	width := 0
	prev := rune(-1)
	for _, cp := range text {
		g, ok := fnt.glyphs[cp]
		if !ok {
			prev = cp
			continue
		}
		width += int(g.XAdvance)
		if prev >= 0 {
			width += fnt.kernings[kerningPair{first: prev, second: cp}]
		}
		prev = cp
	}
	if width <= 0 {
		return nil, fmt.Errorf("rasterize: no printable glyphs in %q for face '%s'", text, spec.Face)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, fnt.lineHeight))
	penX := 0
	prev = rune(-1)
	for _, cp := range text {
		g, ok := fnt.glyphs[cp]
		if !ok {
			core.LogDebug("atlas rasterizer: face '%s' has no glyph for %q", spec.Face, cp)
			prev = cp
			continue
		}
		if prev >= 0 {
			penX += fnt.kernings[kerningPair{first: prev, second: cp}]
		}
		if page, ok := fnt.pages[int(g.Page)]; ok {
			src := image.Rect(int(g.X), int(g.Y), int(g.X+g.Width), int(g.Y+g.Height))
			blit(dst, penX+int(g.XOffset), int(g.YOffset), page, src)
		}
		penX += int(g.XAdvance)
		prev = cp
	}

	return metadata.NewImageDataFromImage(dst, "text"), nil
}

func (r *AtlasRasterizer) font(face string) (*atlasFont, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if fnt, ok := r.loaded[face]; ok {
		return fnt, nil
	}

	fntPath := filepath.Join(r.FontsPath, face+".fnt")
	loaded, err := bmfont.Load(fntPath)
	if err != nil {
		return nil, fmt.Errorf("load font '%s': %w", face, err)
	}

	fnt := &atlasFont{
		lineHeight: int(loaded.Descriptor.Common.LineHeight),
		base:       int(loaded.Descriptor.Common.Base),
		glyphs:     make(map[rune]bmfont.Char),
		kernings:   make(map[kerningPair]int),
		pages:      make(map[int]image.Image),
	}

	for _, g := range loaded.Descriptor.Chars {
		fnt.glyphs[g.ID] = g
	}
	for p, k := range loaded.Descriptor.Kerning {
		fnt.kernings[kerningPair{first: p.First, second: p.Second}] = int(k.Amount)
	}
	for _, p := range loaded.Descriptor.Pages {
		sheet, err := r.loadPage(filepath.Join(filepath.Dir(fntPath), p.File))
		if err != nil {
			return nil, fmt.Errorf("load font '%s' page '%s': %w", face, p.File, err)
		}
		fnt.pages[int(p.ID)] = sheet
	}

	r.loaded[face] = fnt
	return fnt, nil
}

func (r *AtlasRasterizer) loadPage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	return img, err
}
