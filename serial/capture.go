package serial

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"pipelined.dev/radio/frame"
)

// DefaultCaptureSize is the number of frames kept by capture if size is
// not provided.
const DefaultCaptureSize = 100

// Record is a single captured frame.
type Record struct {
	Time     time.Time    `msgpack:"time"`
	Raw      []byte       `msgpack:"raw"`
	Header   frame.Header `msgpack:"header"`
	Channels []uint16     `msgpack:"channels"`
	Error    string       `msgpack:"error,omitempty"`
}

// Capture is a port that keeps the latest written frames in memory
// instead of sending them. It's used to debug transmission without the
// hardware.
type Capture struct {
	size int
	now  func() time.Time

	m       sync.Mutex
	open    bool
	records []Record
	total   int
}

// NewCapture returns capture that keeps up to size latest frames.
func NewCapture(size int) *Capture {
	if size <= 0 {
		size = DefaultCaptureSize
	}
	return &Capture{
		size: size,
		now:  time.Now,
	}
}

// Open marks capture as open.
func (c *Capture) Open() error {
	c.m.Lock()
	defer c.m.Unlock()
	c.open = true
	return nil
}

// Close marks capture as closed. Captured frames are kept.
func (c *Capture) Close() error {
	c.m.Lock()
	defer c.m.Unlock()
	c.open = false
	return nil
}

// IsOpen reports if capture is open.
func (c *Capture) IsOpen() bool {
	c.m.Lock()
	defer c.m.Unlock()
	return c.open
}

// Write decodes and records the frame. Frames that cannot be decoded are
// recorded with an error. The buffer is copied.
func (c *Capture) Write(b []byte) (int, error) {
	if !c.IsOpen() {
		return 0, ErrNotOpen
	}
	r := Record{
		Time: c.now(),
		Raw:  append([]byte(nil), b...),
	}
	h, channels, err := frame.Decode(r.Raw)
	if err != nil {
		r.Error = err.Error()
	} else {
		r.Header, r.Channels = h, channels
	}

	c.m.Lock()
	defer c.m.Unlock()
	c.total++
	c.records = append(c.records, r)
	if len(c.records) > c.size {
		c.records = append(c.records[:0], c.records[len(c.records)-c.size:]...)
	}
	return len(b), nil
}

// Latest returns the last captured frame.
func (c *Capture) Latest() (Record, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if len(c.records) == 0 {
		return Record{}, false
	}
	return c.records[len(c.records)-1], true
}

// Records returns a copy of captured frames, oldest first.
func (c *Capture) Records() []Record {
	c.m.Lock()
	defer c.m.Unlock()
	return append([]Record(nil), c.records...)
}

// Total returns the number of frames written since capture was created.
func (c *Capture) Total() int {
	c.m.Lock()
	defer c.m.Unlock()
	return c.total
}

// Dump writes captured frames in msgpack format.
func (c *Capture) Dump(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(c.Records()); err != nil {
		return fmt.Errorf("dump capture: %w", err)
	}
	return nil
}

// Load reads frames written with Dump.
func Load(r io.Reader) ([]Record, error) {
	var records []Record
	if err := msgpack.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("load capture: %w", err)
	}
	return records, nil
}
