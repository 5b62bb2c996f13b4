package pose

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

// Body holds per-frame data for every person and point.
//
// Data is laid out frames × people × points × dims and Confidence is
// frames × people × points, both row-major.
type Body struct {
	FPS        float32   `msgpack:"fps"`
	Frames     int       `msgpack:"frames"`
	People     int       `msgpack:"people"`
	Points     int       `msgpack:"points"`
	Dims       int       `msgpack:"dims"`
	Data       []float32 `msgpack:"data"`
	Confidence []float32 `msgpack:"conf"`
}

// NewBody validates the array lengths against the declared shape.
func NewBody(fps float32, frames, people, points, dims int, data, conf []float32) (*Body, error) {
	b := &Body{FPS: fps, Frames: frames, People: people, Points: points, Dims: dims, Data: data, Confidence: conf}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Body) validate() error {
	if b.Frames < 0 || b.People < 0 || b.Points < 0 || b.Dims < 0 {
		return errors.Wrap(ErrShapeMismatch, "negative dimension")
	}
	n := b.Frames * b.People * b.Points
	if len(b.Confidence) != n {
		return errors.Wrapf(ErrShapeMismatch, "confidence has %d values, want %d", len(b.Confidence), n)
	}
	if len(b.Data) != n*b.Dims {
		return errors.Wrapf(ErrShapeMismatch, "data has %d values, want %d", len(b.Data), n*b.Dims)
	}
	return nil
}

// MaxBodySize bounds the data and confidence bytes ReadBody accepts when the
// stream length is unknown.
const MaxBodySize = 1 << 30

// bodyShapeSize is fps, frames and people.
const bodyShapeSize = 4 + 4 + 2

// ReadBody decodes a body whose point layout is described by h.
func ReadBody(r io.Reader, h *Header) (*Body, error) {
	return readBody(r, h, MaxBodySize)
}

// readBody rejects bodies whose declared shape needs more than limit bytes
// after the shape fields, before allocating anything.
func readBody(r io.Reader, h *Header, limit int64) (*Body, error) {
	d := decoder{r: r}
	b := &Body{
		FPS:    d.float32(),
		Frames: int(d.uint32()),
		People: int(d.uint16()),
		Points: h.TotalPoints(),
		Dims:   h.Dims(),
	}
	if d.err != nil {
		return nil, errors.Wrap(d.err, "read body shape")
	}
	size, ok := bodySize(b.Frames, b.People, b.Points, b.Dims)
	if !ok || size > uint64(max(limit, 0)) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d frames × %d people × %d points × %d dims exceed the %d bytes available",
			b.Frames, b.People, b.Points, b.Dims, limit)
	}
	n := b.Frames * b.People * b.Points
	b.Data = make([]float32, n*b.Dims)
	b.Confidence = make([]float32, n)
	if err := binary.Read(r, order, b.Data); err != nil {
		return nil, errors.Wrap(err, "read body data")
	}
	if err := binary.Read(r, order, b.Confidence); err != nil {
		return nil, errors.Wrap(err, "read body confidence")
	}
	return b, nil
}

// bodySize is the byte length of data plus confidence, reporting false on overflow.
func bodySize(frames, people, points, dims int) (uint64, bool) {
	if frames < 0 || people < 0 || points < 0 || dims < 0 {
		return 0, false
	}
	size := uint64(1)
	for _, f := range []uint64{uint64(frames), uint64(people), uint64(points), uint64(dims) + 1, 4} {
		hi, lo := bits.Mul64(size, f)
		if hi != 0 {
			return 0, false
		}
		size = lo
	}
	return size, true
}

// Write encodes the body to w.
func (b *Body) Write(w io.Writer) error {
	if err := b.validate(); err != nil {
		return err
	}
	if uint64(b.Frames) > math.MaxUint32 {
		return errors.Wrapf(ErrCountOverflow, "%d frames", b.Frames)
	}
	e := encoder{w: w}
	e.float32(b.FPS)
	e.uint32(uint32(b.Frames))
	e.count(b.People, "people")
	if e.err != nil {
		return errors.Wrap(e.err, "write body shape")
	}
	if err := binary.Write(w, order, b.Data); err != nil {
		return errors.Wrap(err, "write body data")
	}
	if err := binary.Write(w, order, b.Confidence); err != nil {
		return errors.Wrap(err, "write body confidence")
	}
	return nil
}

// Pose pairs a shared header with a body.
type Pose struct {
	Header *Header
	Body   *Body
}

// New checks that body matches the header's point layout.
func New(h *Header, b *Body) (*Pose, error) {
	if b.Points != h.TotalPoints() || b.Dims != h.Dims() {
		return nil, errors.Wrapf(ErrShapeMismatch, "body has %d points × %d dims, header has %d × %d",
			b.Points, b.Dims, h.TotalPoints(), h.Dims())
	}
	return &Pose{Header: h, Body: b}, nil
}

// Read decodes a full pose file of unknown length. The body is limited to
// MaxBodySize bytes.
func Read(r io.Reader) (*Pose, error) {
	return read(r, -1)
}

// ReadSized decodes a pose file that is exactly size bytes long, such as a tar
// entry. A body declaring more data than the remaining bytes is rejected
// before it is allocated.
func ReadSized(r io.Reader, size int64) (*Pose, error) {
	return read(r, size)
}

// read decodes a pose of size bytes; a negative size means unknown.
func read(r io.Reader, size int64) (*Pose, error) {
	cr := &countingReader{r: bufio.NewReader(r)}
	h, err := ReadHeader(cr)
	if err != nil {
		return nil, err
	}
	limit := int64(MaxBodySize)
	if size >= 0 {
		limit = size - cr.n - bodyShapeSize
	}
	b, err := readBody(cr, h, limit)
	if err != nil {
		return nil, err
	}
	return &Pose{Header: h, Body: b}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Write encodes header then body.
func (p *Pose) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := p.Header.Write(bw); err != nil {
		return err
	}
	if err := p.Body.Write(bw); err != nil {
		return err
	}
	return errors.Wrap(bw.Flush(), "flush pose")
}
