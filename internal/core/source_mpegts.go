package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astits"

	"github.com/Icey-Glitch/mpv/internal/defs"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/packet"
	"github.com/Icey-Glitch/mpv/internal/recorder"
)

// mpegtsSource demuxes an MPEG-TS input and feeds its packets to a
// recorder, one at a time, marking timeline discontinuities as it
// finds them.
type mpegtsSource struct {
	Reader io.Reader
	Parent logger.Writer

	dem          *astits.Demuxer
	streams      []*defs.Stream
	streamsByPID map[uint16]*defs.Stream
	lastPTS      map[uint16]float64
}

// Log implements logger.Writer.
func (s *mpegtsSource) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[source] "+format, args...)
}

// Initialize reads the input up to the PMT and builds the stream
// descriptors.
func (s *mpegtsSource) Initialize(ctx context.Context) error {
	s.dem = astits.NewDemuxer(ctx, bufio.NewReader(s.Reader))
	s.streamsByPID = make(map[uint16]*defs.Stream)
	s.lastPTS = make(map[uint16]float64)

	for {
		data, err := s.dem.NextData()
		if err != nil {
			if err == astits.ErrNoMorePackets {
				return fmt.Errorf("EOF reached before a PMT was found")
			}
			return err
		}

		if data.PMT == nil {
			continue
		}

		for _, es := range data.PMT.ElementaryStreams {
			var codec defs.Codec

			switch es.StreamType {
			case astits.StreamTypeH264Video:
				codec = defs.Codec{Name: "h264", Type: defs.StreamTypeVideo, ClockRate: 90000}

			case astits.StreamTypeH265Video:
				codec = defs.Codec{Name: "h265", Type: defs.StreamTypeVideo, ClockRate: 90000}

			case astits.StreamTypeAACAudio:
				codec = defs.Codec{
					Name:         "aac",
					Type:         defs.StreamTypeAudio,
					ClockRate:    90000,
					SampleRate:   48000,
					ChannelCount: 2,
				}

			case astits.StreamTypeAC3Audio:
				codec = defs.Codec{
					Name:         "ac3",
					Type:         defs.StreamTypeAudio,
					ClockRate:    90000,
					SampleRate:   48000,
					ChannelCount: 6,
				}

			default:
				s.Log(logger.Warn, "skipping track with unsupported stream type %v (PID %d)",
					es.StreamType, es.ElementaryPID)
				continue
			}

			stream := &defs.Stream{
				ID:    len(s.streams),
				Codec: codec,
			}
			s.streams = append(s.streams, stream)
			s.streamsByPID[es.ElementaryPID] = stream

			s.Log(logger.Info, "track %d: %s (PID %d)", stream.ID, codec.Name, es.ElementaryPID)
		}

		if len(s.streams) == 0 {
			return fmt.Errorf("no supported tracks found")
		}

		return nil
	}
}

// Streams returns the stream descriptors found in the PMT.
func (s *mpegtsSource) Streams() []*defs.Stream {
	return s.streams
}

// Run feeds the remaining input to the recorder. A backward timestamp
// jump, or a forward jump larger than discThreshold, is reported as a
// discontinuity.
func (s *mpegtsSource) Run(ctx context.Context, rec *recorder.Recorder, discThreshold time.Duration) error {
	threshold := discThreshold.Seconds()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, err := s.dem.NextData()
		if err != nil {
			if err == astits.ErrNoMorePackets {
				for _, stream := range s.streams {
					rec.FindSink(stream).Feed(nil)
				}
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if data.PES == nil {
			continue
		}

		stream, ok := s.streamsByPID[data.PID]
		if !ok {
			continue
		}

		pts := packet.NoPTS
		dts := packet.NoPTS

		if oh := data.PES.Header.OptionalHeader; oh != nil {
			switch oh.PTSDTSIndicator {
			case astits.PTSDTSIndicatorOnlyPTS:
				pts = float64(oh.PTS.Base) / 90000

			case astits.PTSDTSIndicatorBothPresent:
				pts = float64(oh.PTS.Base) / 90000
				// 33-bit timestamps can wrap between DTS and PTS.
				diff := float64((oh.PTS.Base-oh.DTS.Base)&0x1FFFFFFFF) / 90000
				dts = pts - diff
			}
		}

		keyframe := stream.Codec.Type != defs.StreamTypeVideo
		if data.FirstPacket != nil &&
			data.FirstPacket.AdaptationField != nil &&
			data.FirstPacket.AdaptationField.RandomAccessIndicator {
			keyframe = true
		}

		if pts != packet.NoPTS {
			if last, ok := s.lastPTS[data.PID]; ok {
				if pts < last || (pts-last) > threshold {
					s.Log(logger.Info, "timeline jump on PID %d (%f -> %f)", data.PID, last, pts)
					rec.MarkDiscontinuity()
					s.lastPTS = make(map[uint16]float64)
				}
			}
			s.lastPTS[data.PID] = pts
		}

		rec.FindSink(stream).Feed(&packet.Packet{
			PTS:      pts,
			DTS:      dts,
			Duration: packet.NoPTS,
			Keyframe: keyframe,
			Payload:  data.PES.Data,
		})
	}
}
