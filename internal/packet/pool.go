package packet

import (
	"sync"
	"sync/atomic"
)

// Pool hands out independent copies of packets and recycles their
// payload storage. It is safe for concurrent use.
type Pool struct {
	maxRetained int64
	retained    int64
	buffers     sync.Pool
}

// NewPool allocates a Pool. maxRetained bounds the number of copies
// that can be alive at the same time; zero or negative means no bound.
func NewPool(maxRetained int) *Pool {
	return &Pool{
		maxRetained: int64(maxRetained),
		buffers: sync.Pool{
			New: func() interface{} {
				b := make([]byte, 0, 2048)
				return &b
			},
		},
	}
}

// Retain returns an independent copy of src, or nil when the retention
// limit is exhausted. The copy is owned by the caller until passed to
// Release.
func (p *Pool) Retain(src *Packet) *Packet {
	if p.maxRetained > 0 && atomic.AddInt64(&p.retained, 1) > p.maxRetained {
		atomic.AddInt64(&p.retained, -1)
		return nil
	}
	if p.maxRetained <= 0 {
		atomic.AddInt64(&p.retained, 1)
	}

	buf := p.buffers.Get().(*[]byte)
	if cap(*buf) < len(src.Payload) {
		*buf = make([]byte, len(src.Payload))
	}
	*buf = (*buf)[:len(src.Payload)]
	copy(*buf, src.Payload)

	return &Packet{
		PTS:      src.PTS,
		DTS:      src.DTS,
		Duration: src.Duration,
		Keyframe: src.Keyframe,
		Payload:  *buf,
	}
}

// Release returns a retained copy to the pool.
func (p *Pool) Release(pkt *Packet) {
	buf := pkt.Payload[:0]
	p.buffers.Put(&buf)
	pkt.Payload = nil
	atomic.AddInt64(&p.retained, -1)
}

// Retained returns the number of copies currently alive.
func (p *Pool) Retained() int {
	return int(atomic.LoadInt64(&p.retained))
}
