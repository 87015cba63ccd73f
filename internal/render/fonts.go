package render

import (
	"fmt"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Fonts holds the parsed typefaces used for labels and cards.
type Fonts struct {
	regular *text.FontSource
	bold    *text.FontSource
}

// LoadFonts parses the embedded Go fonts.
func LoadFonts() (*Fonts, error) {
	regular, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load regular font: %w", err)
	}
	bold, err := text.NewFontSource(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("load bold font: %w", err)
	}
	return &Fonts{regular: regular, bold: bold}, nil
}

// Regular returns the regular face at the given point size.
func (f *Fonts) Regular(size float64) text.Face {
	return f.regular.Face(size)
}

// Bold returns the bold face at the given point size.
func (f *Fonts) Bold(size float64) text.Face {
	return f.bold.Face(size)
}

// Close releases both font sources.
func (f *Fonts) Close() error {
	if err := f.regular.Close(); err != nil {
		return err
	}
	return f.bold.Close()
}
