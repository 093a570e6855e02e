// Package recorder synchronizes live packet streams into a container file.
package recorder

import (
	"fmt"

	"github.com/Icey-Glitch/mpv/internal/defs"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/muxer"
	"github.com/Icey-Glitch/mpv/internal/packet"
)

const (
	// maximum number of packets buffered per stream while attempting to
	// resync. This should be higher than the highest supported keyframe
	// interval.
	queueMaxPackets = 256

	// number of packets a video stream must buffer before its earliest
	// timestamp is trusted as the segment start, to absorb codec delay
	// and frame reordering.
	queueMinPackets = 16
)

// Recorder writes incoming packet streams to a destination file,
// keeping all streams on a single output timeline across
// discontinuities. It is driven synchronously by a single feeding
// goroutine.
type Recorder struct {
	Destination string
	Streams     []*defs.Stream
	Attachments []*defs.Attachment
	Pool        *packet.Pool
	Parent      logger.Writer

	// Muxer is the container writer. When nil, one is created from
	// Destination.
	Muxer muxer.Muxer

	mux             muxer.Muxer
	sinks           []*Sink
	opened          bool
	muxing          bool
	muxingFromStart bool
	dtsWarned       bool

	// the first source timestamp of the currently recorded segment.
	baseTS float64
	// the output timestamp that baseTS maps to.
	rebaseTS float64
}

// Log implements logger.Writer.
func (r *Recorder) Log(level logger.Level, format string, args ...interface{}) {
	r.Parent.Log(level, "[recorder] "+format, args...)
}

// Initialize initializes a Recorder. On error, everything constructed
// so far is released; no partial session is left open.
func (r *Recorder) Initialize() error {
	if len(r.Streams) == 0 {
		return fmt.Errorf("no streams")
	}

	if r.Pool == nil {
		r.Pool = packet.NewPool(0)
	}

	mux := r.Muxer
	if mux == nil {
		var err error
		mux, err = muxer.Open(r.Destination, r)
		if err != nil {
			return fmt.Errorf("failed opening output file: %w", err)
		}
	}
	r.mux = mux

	for _, stream := range r.Streams {
		trackID, err := mux.AddTrack(&stream.Codec)
		if err != nil {
			r.mux.Close() //nolint:errcheck
			r.mux = nil
			return fmt.Errorf("can't mux one of the input streams: %w", err)
		}

		r.sinks = append(r.sinks, &Sink{
			recorder:  r,
			stream:    stream,
			trackID:   trackID,
			maxOutPTS: packet.NoPTS,
		})
	}

	for _, att := range r.Attachments {
		err := mux.AddAttachment(att)
		if err != nil {
			r.mux.Close() //nolint:errcheck
			r.mux = nil
			return fmt.Errorf("can't mux one of the attachments: %w", err)
		}
	}

	err := mux.WriteHeader(map[string]string{
		"encoding_tool": "experimental stream recording feature" +
			" (can generate broken files - please report bugs)",
	})
	if err != nil {
		r.mux.Close() //nolint:errcheck
		r.mux = nil
		return fmt.Errorf("writing header failed: %w", err)
	}

	r.opened = true
	r.muxingFromStart = true
	r.baseTS = packet.NoPTS
	r.rebaseTS = 0

	r.Log(logger.Warn, "this is an experimental feature; output files might be "+
		"broken or not play correctly with various players")

	return nil
}

// Close drains every sink one final time, finalizes the container and
// closes the destination. Finalization failures are logged but do not
// prevent resource release.
func (r *Recorder) Close() {
	if r.opened {
		for _, sink := range r.sinks {
			r.muxPackets(sink)
		}

		err := r.mux.WriteTrailer()
		if err != nil {
			r.Log(logger.Error, "writing trailer failed: %v", err)
		}
	}

	if r.mux != nil {
		err := r.mux.Close()
		if err != nil {
			r.Log(logger.Error, "closing file failed: %v", err)
		}
		r.mux = nil
	}

	r.flushPackets()
}

// FindSink returns the sink associated with the given source stream,
// or nil if that stream was not accepted at initialization. The sink
// is valid until the Recorder is closed.
func (r *Recorder) FindSink(stream *defs.Stream) *Sink {
	for _, sink := range r.sinks {
		if sink.stream == stream {
			return sink
		}
	}
	return nil
}

// MarkDiscontinuity signals a break in the source timeline. It is
// called on a seek, or when recording was started mid-stream. Queued
// packets that already passed the resync decision are written out
// first; the rest are discarded, and muxing stops until all streams
// can resume together on a new anchor.
func (r *Recorder) MarkDiscontinuity() {
	for _, sink := range r.sinks {
		r.muxPackets(sink)
		sink.discont = true
		sink.properEOF = false
	}

	r.flushPackets()
	r.muxing = false
	r.muxingFromStart = false
}

func (r *Recorder) flushPackets() {
	for _, sink := range r.sinks {
		for _, pkt := range sink.queue {
			r.Pool.Release(pkt)
		}
		sink.queue = sink.queue[:0]
	}
}

// checkRestart decides whether muxing can (re)start, and from where.
func (r *Recorder) checkRestart() {
	if r.muxing {
		return
	}

	minTS := packet.NoPTS
	rebaseTS := 0.0

	for _, sink := range r.sinks {
		minPackets := 1
		if sink.stream.Codec.Type == defs.StreamTypeVideo {
			minPackets = queueMinPackets
		}

		// the new segment must not rewind behind anything already
		// written for any stream.
		rebaseTS = packet.MaxPTS(rebaseTS, sink.maxOutPTS)

		if len(sink.queue) < minPackets {
			if !sink.properEOF && sink.stream.Codec.Type != defs.StreamTypeSubtitle {
				return
			}
			continue
		}

		for i := 0; i < minPackets; i++ {
			minTS = packet.MinPTS(minTS, sink.queue[i].PTS)
		}
	}

	// subtitle-only recording (wait longer) or streams without any PTS.
	if minTS == packet.NoPTS {
		return
	}

	r.rebaseTS = rebaseTS
	r.baseTS = minTS

	for _, sink := range r.sinks {
		sink.maxOutPTS = minTS
	}

	r.muxing = true

	if !r.muxingFromStart {
		r.Log(logger.Warn, "discontinuity at timestamp %f", r.rebaseTS)
	}
}

// muxPackets writes all packets queued on the sink.
func (r *Recorder) muxPackets(sink *Sink) {
	if !r.muxing || len(sink.queue) == 0 {
		return
	}

	for _, pkt := range sink.queue {
		r.muxPacket(sink, pkt)
		r.Pool.Release(pkt)
	}
	sink.queue = sink.queue[:0]
}

func (r *Recorder) muxPacket(sink *Sink, pkt *packet.Packet) {
	diff := r.rebaseTS - r.baseTS

	out := *pkt
	out.PTS = packet.AddPTS(out.PTS, diff)
	out.DTS = packet.AddPTS(out.DTS, diff)

	// anchor future resyncs on the source timeline.
	sink.maxOutPTS = packet.MaxPTS(sink.maxOutPTS, pkt.PTS)

	if out.Duration == packet.NoPTS && sink.stream.Codec.Type != defs.StreamTypeSubtitle {
		out.Duration = 0
	}

	err := r.mux.WritePacket(sink.trackID, &out)
	if err != nil {
		r.Log(logger.Error, "failed writing packet: %v", err)
	}
}
