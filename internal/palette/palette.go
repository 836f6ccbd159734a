// Package palette loads and validates the ordered reference palette that
// skin colours are classified against. A Palette is immutable once built and
// safe for concurrent use; accessors hand out copies.
package palette

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"go-skintone-inspector/pkg/models"
)

//go:embed monk.yaml
var monkYAML []byte

// Entry is one tone as written in a palette file
type Entry struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Hex         string `yaml:"hex" json:"hex"`
	Ordinal     int    `yaml:"ordinal,omitempty" json:"ordinal,omitempty"`
}

type document struct {
	Name     string  `yaml:"name"`
	Fallback string  `yaml:"fallback"`
	Tones    []Entry `yaml:"tones"`
}

// Palette is an ordered, light-to-dark list of reference tones
type Palette struct {
	name     string
	tones    []models.ReferenceTone
	index    map[string]int
	fallback int
}

var (
	defaultOnce    sync.Once
	defaultPalette *Palette
)

// Default returns the embedded Monk palette
func Default() *Palette {
	defaultOnce.Do(func() {
		p, err := Parse(monkYAML)
		if err != nil {
			panic(fmt.Sprintf("palette: embedded monk palette is invalid: %v", err))
		}
		defaultPalette = p
	})
	return defaultPalette
}

// Load reads a palette document from disk
func Load(path string) (*Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML palette document
func Parse(data []byte) (*Palette, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode palette: %w", err)
	}
	return FromEntries(doc.Name, doc.Tones, doc.Fallback)
}

// FromEntries builds a palette from an in-memory list. Missing ordinals
// default to the 1-based list position. An empty fallback selects the
// middle tone, rounding toward the lighter side.
func FromEntries(name string, entries []Entry, fallbackID string) (*Palette, error) {
	if len(entries) < 2 {
		return nil, fmt.Errorf("palette needs at least 2 tones, got %d", len(entries))
	}

	p := &Palette{
		name:  strings.TrimSpace(name),
		tones: make([]models.ReferenceTone, 0, len(entries)),
		index: make(map[string]int, len(entries)),
	}
	if p.name == "" {
		p.name = "custom"
	}

	for i, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, fmt.Errorf("tone %d: id is required", i)
		}
		if _, dup := p.index[id]; dup {
			return nil, fmt.Errorf("tone %q: duplicate id", id)
		}

		c, hex, err := parseHex(e.Hex)
		if err != nil {
			return nil, fmt.Errorf("tone %q: %w", id, err)
		}

		ordinal := e.Ordinal
		if ordinal == 0 {
			ordinal = i + 1
		}
		if i > 0 && ordinal <= p.tones[i-1].Ordinal {
			return nil, fmt.Errorf("tone %q: ordinal %d does not increase (previous %d)",
				id, ordinal, p.tones[i-1].Ordinal)
		}

		r, g, b := c.RGB255()
		display := strings.TrimSpace(e.DisplayName)
		if display == "" {
			display = id
		}

		p.index[id] = i
		p.tones = append(p.tones, models.ReferenceTone{
			ID:          id,
			DisplayName: display,
			Hex:         hex,
			RGB:         [3]int{int(r), int(g), int(b)},
			Ordinal:     ordinal,
		})
	}

	// Neighbouring tones may swap L* slightly, but the list as a whole must
	// run light to dark so the extreme sub-ranges are meaningful.
	first := p.lightness(0)
	last := p.lightness(len(p.tones) - 1)
	if first <= last {
		return nil, fmt.Errorf("tones must be ordered light to dark (L* %.1f first, %.1f last)", first*100, last*100)
	}

	fallbackID = strings.TrimSpace(fallbackID)
	if fallbackID == "" {
		p.fallback = (len(p.tones) - 1) / 2
	} else {
		idx, ok := p.index[fallbackID]
		if !ok {
			return nil, fmt.Errorf("fallback tone %q is not in the palette", fallbackID)
		}
		p.fallback = idx
	}

	return p, nil
}

func parseHex(s string) (colorful.Color, string, error) {
	hex := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	if len(hex) != 7 {
		return colorful.Color{}, "", fmt.Errorf("hex %q must have 6 digits", s)
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, "", fmt.Errorf("hex %q: %w", s, err)
	}
	return c, hex, nil
}

func (p *Palette) lightness(i int) float64 {
	rgb := p.tones[i].RGB
	l, _, _ := colorful.Color{
		R: float64(rgb[0]) / 255,
		G: float64(rgb[1]) / 255,
		B: float64(rgb[2]) / 255,
	}.Lab()
	return l
}

// Name returns the palette name
func (p *Palette) Name() string { return p.name }

// Len returns the number of tones
func (p *Palette) Len() int { return len(p.tones) }

// Tones returns a copy of the tones in ordinal order
func (p *Palette) Tones() []models.ReferenceTone {
	out := make([]models.ReferenceTone, len(p.tones))
	copy(out, p.tones)
	return out
}

// At returns the tone at list position i
func (p *Palette) At(i int) models.ReferenceTone { return p.tones[i] }

// ByID looks a tone up by id
func (p *Palette) ByID(id string) (models.ReferenceTone, bool) {
	i, ok := p.index[id]
	if !ok {
		return models.ReferenceTone{}, false
	}
	return p.tones[i], true
}

// IndexOf returns the list position of id, or -1
func (p *Palette) IndexOf(id string) int {
	if i, ok := p.index[id]; ok {
		return i
	}
	return -1
}

// Lightest returns the first k tones
func (p *Palette) Lightest(k int) []models.ReferenceTone {
	k = p.clampK(k)
	return append([]models.ReferenceTone(nil), p.tones[:k]...)
}

// Darkest returns the last k tones
func (p *Palette) Darkest(k int) []models.ReferenceTone {
	k = p.clampK(k)
	return append([]models.ReferenceTone(nil), p.tones[len(p.tones)-k:]...)
}

func (p *Palette) clampK(k int) int {
	if k < 0 {
		return 0
	}
	if k > len(p.tones) {
		return len(p.tones)
	}
	return k
}

// Fallback returns the documented tone used when analysis degrades
func (p *Palette) Fallback() models.ReferenceTone { return p.tones[p.fallback] }

// WithFallback returns a palette sharing the same tones with another fallback
func (p *Palette) WithFallback(id string) (*Palette, error) {
	idx, ok := p.index[id]
	if !ok {
		return nil, fmt.Errorf("fallback tone %q is not in the palette", id)
	}
	cp := *p
	cp.fallback = idx
	return &cp, nil
}
