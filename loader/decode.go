package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Decoder errors.
var (
	// ErrEmptyData is returned when there is nothing to decode.
	ErrEmptyData = errors.New("loader: empty data")

	// ErrNoDecoder is returned when no registered decoder accepts the data.
	ErrNoDecoder = errors.New("loader: no decoder accepted the data")
)

// Image is a decoded image as tightly packed, non-premultiplied RGBA8.
type Image struct {
	Width, Height int
	Pix           []byte
}

// Stride returns the number of bytes per row.
func (m *Image) Stride() int { return m.Width * 4 }

// Decoder decodes encoded image bytes.
type Decoder interface {
	// Name identifies the decoder in logs and errors.
	Name() string

	// Decode decodes data or returns an error if the data is not in the
	// decoder's format.
	Decode(data []byte) (*Image, error)
}

// StdDecoder adapts a standard image decode function.
type StdDecoder struct {
	Format string
	Func   func(data []byte) (image.Image, error)
}

// Name returns the format name.
func (d StdDecoder) Name() string { return d.Format }

// Decode decodes data and converts the result to RGBA8.
func (d StdDecoder) Decode(data []byte) (*Image, error) {
	img, err := d.Func(data)
	if err != nil {
		return nil, fmt.Errorf("loader: decode %s: %w", d.Format, err)
	}
	return FromImage(img), nil
}

func reader(fn func(r *bytes.Reader) (image.Image, error)) func([]byte) (image.Image, error) {
	return func(data []byte) (image.Image, error) { return fn(bytes.NewReader(data)) }
}

// Built-in decoders.
var (
	PNG  = StdDecoder{"png", reader(func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) })}
	JPEG = StdDecoder{"jpeg", reader(func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) })}
	GIF  = StdDecoder{"gif", reader(func(r *bytes.Reader) (image.Image, error) { return gif.Decode(r) })}
	BMP  = StdDecoder{"bmp", reader(func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) })}
	TIFF = StdDecoder{"tiff", reader(func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) })}
	WebP = StdDecoder{"webp", reader(func(r *bytes.Reader) (image.Image, error) { return webp.Decode(r) })}
)

// Registry is an ordered list of decoders. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	decoders []Decoder
}

// NewRegistry returns a registry holding decoders in the given order.
func NewRegistry(decoders ...Decoder) *Registry {
	return &Registry{decoders: append([]Decoder(nil), decoders...)}
}

// DefaultRegistry returns a new registry with every built-in decoder.
func DefaultRegistry() *Registry {
	return NewRegistry(PNG, JPEG, GIF, BMP, TIFF, WebP)
}

// Register appends d. Decoders registered earlier are tried first.
func (r *Registry) Register(d Decoder) {
	if d == nil {
		return
	}
	r.mu.Lock()
	r.decoders = append(r.decoders, d)
	r.mu.Unlock()
}

// Clear removes every decoder.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.decoders = nil
	r.mu.Unlock()
}

// Names returns the decoder names in trial order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.decoders))
	for i, d := range r.decoders {
		names[i] = d.Name()
	}
	return names
}

// Decode tries every decoder in registration order and returns the first
// successful result together with the name of the decoder that produced it.
func (r *Registry) Decode(data []byte) (*Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyData
	}
	r.mu.RLock()
	decoders := r.decoders
	r.mu.RUnlock()

	errs := []error{ErrNoDecoder}
	for _, d := range decoders {
		img, err := d.Decode(data)
		if err == nil {
			return img, d.Name(), nil
		}
		errs = append(errs, err)
	}
	return nil, "", errors.Join(errs...)
}

// FromImage converts any image to tightly packed RGBA8.
func FromImage(img image.Image) *Image {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && n.Stride == b.Dx()*4 && b.Min == (image.Point{}) {
		return &Image{Width: b.Dx(), Height: b.Dy(), Pix: n.Pix[:b.Dx()*b.Dy()*4]}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Image{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// FitWithin returns m scaled down, preserving aspect ratio, so that neither
// side exceeds maxSide. Images that already fit are returned unchanged.
func FitWithin(m *Image, maxSide int) *Image {
	if maxSide <= 0 || (m.Width <= maxSide && m.Height <= maxSide) {
		return m
	}
	w, h := m.Width, m.Height
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	src := &image.NRGBA{Pix: m.Pix, Stride: m.Stride(), Rect: image.Rect(0, 0, m.Width, m.Height)}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return &Image{Width: w, Height: h, Pix: dst.Pix}
}
