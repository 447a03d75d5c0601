// Package gif renders gate masks as animated GIFs, one frame per gate.
package gif

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"

	"github.com/golang/freetype/truetype"
	"github.com/gorgonia/gating/estimator"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi        = 144.0
	fontsize   = 12.0
	lineheight = 1.2
	frameDelay = 100
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

var globPalette = color.Palette{
	color.Gray{0},
	color.Gray{253},
	color.Gray{160},
}

const (
	active   = 0
	inactive = 1
	grid     = 2
)

// Encoder draws the first sample of a gate as a grid: one row per channel, one
// column per gated vector. Active entries are black.
type Encoder struct {
	H, W int
	font.Drawer

	out *gif.GIF
	io.Writer
	face font.Face

	padH, padW  int // padding so everything don't start at the topleft
	initialized bool
}

// NewGifEncoder with height and width. Every frame has that size.
func NewGifEncoder(h, w int) *Encoder {
	return &Encoder{
		H:    h,
		W:    w,
		padH: 10,
		padW: 10,

		Drawer: font.Drawer{
			Src: image.Black,
		},
		out: &gif.GIF{LoopCount: 0},
	}
}

// Encode adds the frame of a gate value.
func (enc *Encoder) Encode(layer string, v estimator.Value) error {
	if len(v.Shape) != 4 {
		return errors.Errorf("gate %q: expected a BCHW value. Got shape %v", layer, v.Shape)
	}
	if !enc.initialized {
		// lazy init of specifications
		enc.face = truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
		enc.Drawer.Src = image.Black
		enc.Drawer.Face = enc.face
		enc.initialized = true
	}

	// a channel gate has one entry per channel, a vector gate one per row
	rows, cols := v.Shape[1], v.Shape[2]*v.Shape[3]
	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))
	top := enc.padH + 2*dy
	cell := minInt((enc.W-2*enc.padW)/maxInt(cols, 1), (enc.H-top-enc.padH)/maxInt(rows, 1))
	if cell < 1 {
		return errors.Errorf("gate %q of shape %v does not fit in %dx%d", layer, v.Shape, enc.W, enc.H)
	}

	bg := image.White
	im := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), globPalette)
	draw.Draw(im, im.Bounds(), bg, image.Point{}, draw.Src)

	enc.Dst = im
	enc.Dot = fixed.P(enc.padW, enc.padH+dy)
	enc.DrawString(layer)
	enc.Dot = fixed.P(enc.padW, enc.padH+2*dy)
	enc.DrawString(fmt.Sprintf("density %v", estimator.Percent(estimator.Density(v))))

	sample := v.Data[:rows*cols]
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			idx := uint8(inactive)
			if sample[r*cols+c] != 0 {
				idx = active
			}
			x0, y0 := enc.padW+c*cell, top+r*cell
			for y := y0; y < y0+cell; y++ {
				for x := x0; x < x0+cell; x++ {
					if cell > 2 && (x == x0 || y == y0) {
						im.SetColorIndex(x, y, grid)
						continue
					}
					im.SetColorIndex(x, y, idx)
				}
			}
		}
	}
	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, frameDelay)
	return nil
}

// EncodeEstimator adds a frame for the latest gate of every layer, in the
// order the layers were registered.
func (enc *Encoder) EncodeEstimator(est *estimator.Estimator, metric string) error {
	values := est.Values(metric)
	for _, layer := range est.Layers(metric) {
		v, ok := values[layer]
		if !ok {
			continue
		}
		if err := enc.Encode(layer, v); err != nil {
			return err
		}
	}
	return nil
}

// Frames is the number of frames encoded so far.
func (enc *Encoder) Frames() int { return len(enc.out.Image) }

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error {
	if enc.Writer == nil {
		return errors.New("no writer to flush the gif into")
	}
	if len(enc.out.Image) == 0 {
		return errors.New("no frame to flush")
	}
	return errors.WithStack(gif.EncodeAll(enc.Writer, enc.out))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
