// Package keyboard implements the virtual keyboard panel: layout, key
// state and texture rendering.
package keyboard

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

//go:embed default_layout.yaml
var defaultLayout []byte

// Modifier bits.
type Modifier uint8

const (
	ModShift    Modifier = 0x01
	ModCapsLock Modifier = 0x02
	ModCtrl     Modifier = 0x04
	ModAlt      Modifier = 0x08
	ModNumLock  Modifier = 0x10
	ModSuper    Modifier = 0x40
	ModMeta     Modifier = 0x80
)

var modNames = map[string]Modifier{
	"shift":   ModShift,
	"caps":    ModCapsLock,
	"ctrl":    ModCtrl,
	"alt":     ModAlt,
	"numlock": ModNumLock,
	"super":   ModSuper,
	"meta":    ModMeta,
}

// Latching modifiers stay down until the next ordinary key. Lock keys are
// toggled by the desktop itself and are sent like any other key.
func (m Modifier) Latching() bool {
	return m&(ModShift|ModCtrl|ModAlt|ModSuper|ModMeta) != 0
}

// Key is one key cap. Code is the Linux evdev key code, Name the DOM code.
type Key struct {
	Code  uint16  `yaml:"code"`
	Name  string  `yaml:"name"`
	Label string  `yaml:"label"`
	Shift string  `yaml:"shift"`
	Width float64 `yaml:"width"`
	Mod   string  `yaml:"mod"`

	Modifier Modifier `yaml:"-"`
}

// Cell is a key placed on the keyboard, in key units from the top left.
type Cell struct {
	Key
	Index int
	Row   int
	X, Y  float64
	W, H  float64
}

func (c *Cell) center() (float64, float64) { return c.X + c.W/2, c.Y + c.H/2 }

type Layout struct {
	Name string  `yaml:"name"`
	Rows [][]Key `yaml:"rows"`

	cells  []Cell
	width  float64
	height float64
}

var ErrEmptyLayout = errors.New("keyboard layout has no keys")

func Parse(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.build(); err != nil {
		return nil, err
	}
	return &l, nil
}

func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Default is the built-in US layout.
func Default() *Layout {
	l, err := Parse(defaultLayout)
	if err != nil {
		panic(fmt.Sprintf("embedded keyboard layout: %v", err))
	}
	return l
}

func (l *Layout) build() error {
	l.cells = l.cells[:0]
	l.width = 0
	for r, row := range l.Rows {
		x := 0.0
		for i := range row {
			k := &row[i]
			if k.Width == 0 {
				k.Width = 1
			}
			if k.Width < 0 || math.IsNaN(k.Width) {
				return fmt.Errorf("row %d key %d: bad width %v", r, i, k.Width)
			}
			if k.Mod != "" {
				m, ok := modNames[strings.ToLower(k.Mod)]
				if !ok {
					return fmt.Errorf("row %d key %q: unknown modifier %q", r, k.Name, k.Mod)
				}
				k.Modifier = m
			}
			// Code 0 is a spacer.
			if k.Code != 0 {
				l.cells = append(l.cells, Cell{Key: *k, Index: len(l.cells), Row: r, X: x, Y: float64(r), W: k.Width, H: 1})
			}
			x += k.Width
		}
		l.width = math.Max(l.width, x)
	}
	l.height = float64(len(l.Rows))
	if len(l.cells) == 0 {
		return ErrEmptyLayout
	}
	return nil
}

// Size is the layout extent in key units.
func (l *Layout) Size() (w, h float64) { return l.width, l.height }

func (l *Layout) Aspect() float64 { return l.width / l.height }

func (l *Layout) Cells() []Cell { return l.cells }

// CellAt maps a uv on the keyboard face (v = 0 at the top) to the key cell
// whose centre is nearest. There is no interpolation between keys.
func (l *Layout) CellAt(uv mgl64.Vec2) (*Cell, bool) {
	if len(l.cells) == 0 {
		return nil, false
	}
	x, y := uv.X()*l.width, uv.Y()*l.height
	row := int(math.Floor(y))
	row = max(0, min(row, len(l.Rows)-1))

	best, bestD := -1, math.Inf(1)
	for i := range l.cells {
		c := &l.cells[i]
		// A point inside a cell always maps to that cell, however wide.
		if c.Row == row && x >= c.X && x < c.X+c.W {
			return c, true
		}
		cx, cy := c.center()
		if d := (cx-x)*(cx-x) + (cy-y)*(cy-y); d < bestD {
			best, bestD = i, d
		}
	}
	return &l.cells[best], true
}
