package recorder

import (
	"github.com/Icey-Glitch/mpv/internal/defs"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/packet"
)

// Sink accepts the packets of one source stream. It owns a bounded
// queue of retained packets awaiting a muxing decision.
type Sink struct {
	recorder *Recorder
	stream   *defs.Stream
	trackID  int

	queue []*packet.Packet

	// highest source timestamp written for this stream since the last
	// resync point.
	maxOutPTS float64

	// set after a discontinuity, until the next keyframe.
	discont bool

	// the caller explicitly signaled end of stream.
	properEOF bool
}

// Feed passes a packet to the sink. The sink does not take ownership
// of the packet; it retains an independent copy if needed. A nil
// packet signals proper end of stream.
func (s *Sink) Feed(pkt *packet.Packet) {
	r := s.recorder

	if pkt == nil {
		s.properEOF = true
		r.checkRestart()
		r.muxPackets(s)
		return
	}

	if pkt.DTS == packet.NoPTS && !r.dtsWarned {
		r.Log(logger.Warn, "source stream misses DTS on at least some packets; "+
			"if the target file format requires DTS, the written file will be invalid")
		r.dtsWarned = true
	}

	// after a discontinuity, output must resume on a random-access
	// point.
	if s.discont && !pkt.Keyframe {
		return
	}
	s.discont = false

	if len(s.queue) >= queueMaxPackets {
		r.Log(logger.Error, "stream %d has too many queued packets; dropping", s.trackID)
		return
	}

	retained := r.Pool.Retain(pkt)
	if retained == nil {
		return
	}
	s.queue = append(s.queue, retained)

	r.checkRestart()
	r.muxPackets(s)
}
