package muxer

import (
	"bufio"
	"context"
	"os"

	"github.com/asticode/go-astits"

	"github.com/Icey-Glitch/mpv/internal/defs"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/packet"
)

const (
	mpegtsBufferSize = 64 * 1024

	// offset between PCR and PTS/DTS, to make sure the decoder clock
	// is always behind the timestamps of the written frames.
	mpegtsPCROffset = 0.4
)

type mpegtsTrack struct {
	codec    *defs.Codec
	pid      uint16
	streamID uint8
}

type muxerMPEGTS struct {
	parent logger.Writer

	f          *os.File
	bw         *bufio.Writer
	inner      *astits.Muxer
	tracks     []*mpegtsTrack
	pcrPID     uint16
	pcrCounter int
}

func newMuxerMPEGTS(destination string, parent logger.Writer) (*muxerMPEGTS, error) {
	f, err := os.Create(destination)
	if err != nil {
		return nil, err
	}

	m := &muxerMPEGTS{
		parent: parent,
		f:      f,
		bw:     bufio.NewWriterSize(f, mpegtsBufferSize),
	}
	m.inner = astits.NewMuxer(context.Background(), m.bw)

	return m, nil
}

func (m *muxerMPEGTS) AddTrack(codec *defs.Codec) (int, error) {
	var streamType astits.StreamType
	var streamID uint8

	switch codec.Name {
	case "h264":
		streamType = astits.StreamTypeH264Video
		streamID = 224

	case "h265":
		streamType = astits.StreamTypeH265Video
		streamID = 224

	case "aac":
		streamType = astits.StreamTypeAACAudio
		streamID = 192

	case "ac3":
		streamType = astits.StreamTypeAC3Audio
		streamID = 192

	default:
		return 0, UnsupportedCodecError{Codec: codec.Name, Format: "mpegts"}
	}

	track := &mpegtsTrack{
		codec:    codec,
		pid:      uint16(256 + len(m.tracks)),
		streamID: streamID,
	}

	err := m.inner.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: track.pid,
		StreamType:    streamType,
	})
	if err != nil {
		return 0, err
	}

	m.tracks = append(m.tracks, track)
	return len(m.tracks) - 1, nil
}

func (m *muxerMPEGTS) AddAttachment(att *defs.Attachment) error {
	m.parent.Log(logger.Warn, "attachments are not supported by MPEG-TS; skipping '%s'", att.Name)
	return nil
}

func (m *muxerMPEGTS) WriteHeader(_ map[string]string) error {
	// MPEG-TS carries no global metadata; the header consists of the
	// PAT and PMT tables.
	pcrPID := m.tracks[0].pid
	for _, track := range m.tracks {
		if track.codec.Type == defs.StreamTypeVideo {
			pcrPID = track.pid
			break
		}
	}
	m.pcrPID = pcrPID
	m.inner.SetPCRPID(pcrPID)

	_, err := m.inner.WriteTables()
	return err
}

func (m *muxerMPEGTS) WritePacket(trackID int, pkt *packet.Packet) error {
	track := m.tracks[trackID]

	if pkt.PTS == packet.NoPTS {
		return ErrNoTimestamp
	}

	dts := pkt.DTS
	if dts == packet.NoPTS {
		dts = pkt.PTS
	}

	var af *astits.PacketAdaptationField

	if pkt.Keyframe {
		af = &astits.PacketAdaptationField{}
		af.RandomAccessIndicator = true
	}

	// send PCR once in a while
	if track.pid == m.pcrPID {
		if m.pcrCounter == 0 {
			if af == nil {
				af = &astits.PacketAdaptationField{}
			}
			af.HasPCR = true
			af.PCR = &astits.ClockReference{Base: int64(dts * 90000)}
			m.pcrCounter = 3
		}
		m.pcrCounter--
	}

	oh := &astits.PESOptionalHeader{
		MarkerBits: 2,
	}

	if dts == pkt.PTS {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorOnlyPTS
		oh.PTS = &astits.ClockReference{Base: int64((pkt.PTS + mpegtsPCROffset) * 90000)}
	} else {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorBothPresent
		oh.DTS = &astits.ClockReference{Base: int64((dts + mpegtsPCROffset) * 90000)}
		oh.PTS = &astits.ClockReference{Base: int64((pkt.PTS + mpegtsPCROffset) * 90000)}
	}

	_, err := m.inner.WriteData(&astits.MuxerData{
		PID:             track.pid,
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: oh,
				StreamID:       track.streamID,
			},
			Data: pkt.Payload,
		},
	})
	return err
}

func (m *muxerMPEGTS) WriteTrailer() error {
	// MPEG-TS has no trailer; just push out the buffered packets.
	return m.bw.Flush()
}

func (m *muxerMPEGTS) Close() error {
	return m.f.Close()
}
