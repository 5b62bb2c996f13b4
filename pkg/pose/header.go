// Package pose reads and writes the pose-format v0.1 binary layout used for
// lexicon artifacts: a skeletal header followed by per-frame coordinates and
// confidences.
package pose

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Version is the only on-disk revision this package understands.
const Version float32 = 0.1

var (
	ErrUnsupportedVersion = errors.New("unsupported pose format version")
	ErrShapeMismatch      = errors.New("pose body shape does not match header")
	// ErrCountOverflow is returned when a length or count does not fit its on-disk field.
	ErrCountOverflow = errors.New("count does not fit the pose format")
)

var order = binary.LittleEndian

// Dimensions is the canvas size the coordinates refer to.
type Dimensions struct {
	Width  uint16
	Height uint16
	Depth  uint16
}

// Limb connects two points of the same component by index.
type Limb struct {
	From uint16
	To   uint16
}

// Color is an RGB triplet used when rendering a limb.
type Color struct {
	R, G, B uint16
}

// Component is one named group of points, e.g. "POSE_LANDMARKS".
type Component struct {
	Name string
	// Format lists per-point channels; the trailing "C" is the confidence.
	Format string
	Points []string
	Limbs  []Limb
	Colors []Color
}

// Header describes the skeletal layout shared by every frame of a body.
type Header struct {
	Version    float32
	Dimensions Dimensions
	Components []Component
}

// TotalPoints is the number of points across all components.
func (h *Header) TotalPoints() int {
	n := 0
	for _, c := range h.Components {
		n += len(c.Points)
	}
	return n
}

// Dims is the number of coordinate channels per point.
func (h *Header) Dims() int {
	if len(h.Components) == 0 {
		return 0
	}
	return len(h.Components[0].Format) - 1
}

// ReadHeader decodes a header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	d := decoder{r: r}
	h := &Header{}
	h.Version = d.float32()
	if d.err != nil {
		return nil, errors.Wrap(d.err, "read version")
	}
	if math.Abs(float64(h.Version-Version)) > 1e-6 {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "%v", h.Version)
	}
	h.Dimensions = Dimensions{Width: d.uint16(), Height: d.uint16(), Depth: d.uint16()}

	n := int(d.uint16())
	for i := 0; i < n && d.err == nil; i++ {
		c := Component{Name: d.string(), Format: d.string()}
		points, limbs, colors := int(d.uint16()), int(d.uint16()), int(d.uint16())
		c.Points = make([]string, 0, points)
		for j := 0; j < points && d.err == nil; j++ {
			c.Points = append(c.Points, d.string())
		}
		c.Limbs = make([]Limb, 0, limbs)
		for j := 0; j < limbs && d.err == nil; j++ {
			c.Limbs = append(c.Limbs, Limb{From: d.uint16(), To: d.uint16()})
		}
		c.Colors = make([]Color, 0, colors)
		for j := 0; j < colors && d.err == nil; j++ {
			c.Colors = append(c.Colors, Color{R: d.uint16(), G: d.uint16(), B: d.uint16()})
		}
		h.Components = append(h.Components, c)
	}
	if d.err != nil {
		return nil, errors.Wrap(d.err, "read header")
	}
	return h, nil
}

// Write encodes the header to w.
func (h *Header) Write(w io.Writer) error {
	e := encoder{w: w}
	e.float32(h.Version)
	e.uint16(h.Dimensions.Width)
	e.uint16(h.Dimensions.Height)
	e.uint16(h.Dimensions.Depth)
	e.count(len(h.Components), "components")
	for _, c := range h.Components {
		e.string(c.Name)
		e.string(c.Format)
		e.count(len(c.Points), "points")
		e.count(len(c.Limbs), "limbs")
		e.count(len(c.Colors), "colors")
		for _, p := range c.Points {
			e.string(p)
		}
		for _, l := range c.Limbs {
			e.uint16(l.From)
			e.uint16(l.To)
		}
		for _, col := range c.Colors {
			e.uint16(col.R)
			e.uint16(col.G)
			e.uint16(col.B)
		}
	}
	return errors.Wrap(e.err, "write header")
}

// decoder and encoder latch the first error so call sites stay linear.
type decoder struct {
	r   io.Reader
	buf [4]byte
	err error
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	_, d.err = io.ReadFull(d.r, d.buf[:n])
	return d.buf[:n]
}

func (d *decoder) uint16() uint16 { return order.Uint16(d.read(2)) }

func (d *decoder) uint32() uint32 { return order.Uint32(d.read(4)) }

func (d *decoder) float32() float32 { return math.Float32frombits(d.uint32()) }

func (d *decoder) string() string {
	n := int(d.uint16())
	if d.err != nil || n == 0 {
		return ""
	}
	b := make([]byte, n)
	_, d.err = io.ReadFull(d.r, b)
	return string(b)
}

type encoder struct {
	w   io.Writer
	buf [4]byte
	err error
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) uint16(v uint16) {
	order.PutUint16(e.buf[:2], v)
	e.write(e.buf[:2])
}

func (e *encoder) uint32(v uint32) {
	order.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) float32(v float32) { e.uint32(math.Float32bits(v)) }

// count writes n as a uint16, failing instead of truncating.
func (e *encoder) count(n int, what string) {
	if e.err != nil {
		return
	}
	if n < 0 || n > math.MaxUint16 {
		e.err = errors.Wrapf(ErrCountOverflow, "%d %s", n, what)
		return
	}
	e.uint16(uint16(n))
}

func (e *encoder) string(s string) {
	e.count(len(s), "string bytes")
	e.write([]byte(s))
}
