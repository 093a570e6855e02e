package muxer

import (
	"fmt"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	mp4codecs "github.com/bluenviron/mediacommon/v2/pkg/formats/mp4/codecs"

	"github.com/Icey-Glitch/mpv/internal/defs"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/packet"
)

// number of buffered samples that triggers a new part.
const fmp4PartSampleCount = 64

// 1920x1080 baseline
var h264DefaultSPS = []byte{
	0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
	0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
	0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9, 0x20,
}

var h264DefaultPPS = []byte{0x08, 0x06, 0x07, 0x08}

var h265DefaultVPS = []byte{
	0x40, 0x01, 0x0c, 0x01, 0xff, 0xff, 0x02, 0x20,
	0x00, 0x00, 0x03, 0x00, 0xb0, 0x00, 0x00, 0x03,
	0x00, 0x00, 0x03, 0x00, 0x7b, 0x18, 0xb0, 0x24,
}

var h265DefaultSPS = []byte{
	0x42, 0x01, 0x01, 0x02, 0x20, 0x00, 0x00, 0x03,
	0x00, 0xb0, 0x00, 0x00, 0x03, 0x00, 0x00, 0x03,
	0x00, 0x7b, 0xa0, 0x07, 0x82, 0x00, 0x88, 0x7d,
	0xb6, 0x71, 0x8b, 0x92, 0x44, 0x80, 0x53, 0x88,
	0x88, 0x92, 0xcf, 0x24, 0xa6, 0x92, 0x72, 0xc9,
	0x12, 0x49, 0x22, 0xdc, 0x91, 0xaa, 0x48, 0xfc,
	0xa2, 0x23, 0xff, 0x00, 0x01, 0x00, 0x01, 0x6a,
	0x02, 0x02, 0x02, 0x01,
}

var h265DefaultPPS = []byte{
	0x44, 0x01, 0xc0, 0x25, 0x2f, 0x05, 0x32, 0x40,
}

type fmp4PendingSample struct {
	sample *fmp4.Sample
	dts    float64
}

type fmp4Track struct {
	initTrack *fmp4.InitTrack
	codec     *defs.Codec

	partTrack *fmp4.PartTrack
	pending   *fmp4PendingSample
}

func (t *fmp4Track) timeScale() float64 {
	return float64(t.initTrack.TimeScale)
}

type muxerFMP4 struct {
	parent logger.Writer

	f                  *os.File
	tracks             []*fmp4Track
	nextSequenceNumber uint32
	bufferedSamples    int
}

func newMuxerFMP4(destination string, parent logger.Writer) (*muxerFMP4, error) {
	f, err := os.Create(destination)
	if err != nil {
		return nil, err
	}

	return &muxerFMP4{
		parent: parent,
		f:      f,
	}, nil
}

func fmp4CodecOf(codec *defs.Codec) (mp4codecs.Codec, error) {
	switch codec.Name {
	case "h264":
		sps, pps := h264DefaultSPS, h264DefaultPPS
		if len(codec.Extradata) >= 2 {
			sps, pps = codec.Extradata[0], codec.Extradata[1]
		}
		return &mp4codecs.H264{
			SPS: sps,
			PPS: pps,
		}, nil

	case "h265":
		vps, sps, pps := h265DefaultVPS, h265DefaultSPS, h265DefaultPPS
		if len(codec.Extradata) >= 3 {
			vps, sps, pps = codec.Extradata[0], codec.Extradata[1], codec.Extradata[2]
		}
		return &mp4codecs.H265{
			VPS: vps,
			SPS: sps,
			PPS: pps,
		}, nil

	case "aac":
		config := mpeg4audio.AudioSpecificConfig{
			Type:         mpeg4audio.ObjectTypeAACLC,
			SampleRate:   codec.SampleRate,
			ChannelCount: codec.ChannelCount,
		}
		if len(codec.Extradata) >= 1 {
			err := config.Unmarshal(codec.Extradata[0])
			if err != nil {
				return nil, fmt.Errorf("invalid AAC configuration: %w", err)
			}
		}
		return &mp4codecs.MPEG4Audio{
			Config: config,
		}, nil

	case "opus":
		return &mp4codecs.Opus{
			ChannelCount: codec.ChannelCount,
		}, nil

	case "ac3":
		return &mp4codecs.AC3{
			SampleRate:   codec.SampleRate,
			ChannelCount: codec.ChannelCount,
			Fscod:        0,
			Bsid:         8,
			Bsmod:        0,
			Acmod:        7,
			LfeOn:        true,
			BitRateCode:  7,
		}, nil

	case "vp9":
		return &mp4codecs.VP9{
			Width:             codec.Width,
			Height:            codec.Height,
			Profile:           1,
			BitDepth:          8,
			ChromaSubsampling: 1,
			ColorRange:        false,
		}, nil

	case "av1":
		if len(codec.Extradata) < 1 {
			return nil, fmt.Errorf("AV1 requires a sequence header")
		}
		return &mp4codecs.AV1{
			SequenceHeader: codec.Extradata[0],
		}, nil

	default:
		return nil, UnsupportedCodecError{Codec: codec.Name, Format: "mp4"}
	}
}

func (m *muxerFMP4) AddTrack(codec *defs.Codec) (int, error) {
	mp4Codec, err := fmp4CodecOf(codec)
	if err != nil {
		return 0, err
	}

	timeScale := codec.ClockRate
	if timeScale == 0 {
		timeScale = 90000
	}

	track := &fmp4Track{
		initTrack: &fmp4.InitTrack{
			ID:        len(m.tracks) + 1,
			TimeScale: uint32(timeScale),
			Codec:     mp4Codec,
		},
		codec: codec,
	}

	m.tracks = append(m.tracks, track)
	return len(m.tracks) - 1, nil
}

func (m *muxerFMP4) AddAttachment(att *defs.Attachment) error {
	m.parent.Log(logger.Warn, "attachments are not supported by MP4; skipping '%s'", att.Name)
	return nil
}

func (m *muxerFMP4) WriteHeader(_ map[string]string) error {
	initTracks := make([]*fmp4.InitTrack, len(m.tracks))
	for i, track := range m.tracks {
		initTracks[i] = track.initTrack
	}

	init := fmp4.Init{
		Tracks: initTracks,
	}

	var buf seekablebuffer.Buffer
	err := init.Marshal(&buf)
	if err != nil {
		return err
	}

	_, err = m.f.Write(buf.Bytes())
	return err
}

func (m *muxerFMP4) WritePacket(trackID int, pkt *packet.Packet) error {
	track := m.tracks[trackID]

	if pkt.PTS == packet.NoPTS {
		return ErrNoTimestamp
	}

	dts := pkt.DTS
	if dts == packet.NoPTS {
		dts = pkt.PTS
	}
	if dts < 0 {
		dts = 0
	}

	duration := pkt.Duration
	if duration == packet.NoPTS {
		duration = 0
	}

	// the payload buffer belongs to the caller and may be recycled
	// right after this call returns.
	sample := &fmp4.Sample{
		Duration:        uint32(duration * track.timeScale()),
		PTSOffset:       int32((pkt.PTS - dts) * track.timeScale()),
		IsNonSyncSample: !pkt.Keyframe,
		Payload:         append([]byte(nil), pkt.Payload...),
	}

	// defer the sample by one packet, so that an unknown duration can
	// be computed from the decode timestamp that follows it.
	pending := track.pending
	track.pending = &fmp4PendingSample{
		sample: sample,
		dts:    dts,
	}
	if pending != nil {
		if pending.sample.Duration == 0 && dts > pending.dts {
			pending.sample.Duration = uint32((dts - pending.dts) * track.timeScale())
		}
		m.appendSample(track, pending)
	}

	if m.bufferedSamples >= fmp4PartSampleCount {
		return m.flushPart()
	}
	return nil
}

func (m *muxerFMP4) appendSample(track *fmp4Track, pending *fmp4PendingSample) {
	if track.partTrack == nil {
		track.partTrack = &fmp4.PartTrack{
			ID:       track.initTrack.ID,
			BaseTime: uint64(pending.dts * track.timeScale()),
		}
	}
	track.partTrack.Samples = append(track.partTrack.Samples, pending.sample)
	m.bufferedSamples++
}

func (m *muxerFMP4) flushPart() error {
	var partTracks []*fmp4.PartTrack
	for _, track := range m.tracks {
		if track.partTrack != nil {
			partTracks = append(partTracks, track.partTrack)
			track.partTrack = nil
		}
	}
	m.bufferedSamples = 0

	if partTracks == nil {
		return nil
	}

	part := fmp4.Part{
		SequenceNumber: m.nextSequenceNumber,
		Tracks:         partTracks,
	}
	m.nextSequenceNumber++

	var buf seekablebuffer.Buffer
	err := part.Marshal(&buf)
	if err != nil {
		return err
	}

	_, err = m.f.Write(buf.Bytes())
	return err
}

func (m *muxerFMP4) WriteTrailer() error {
	for _, track := range m.tracks {
		if track.pending != nil {
			m.appendSample(track, track.pending)
			track.pending = nil
		}
	}
	return m.flushPart()
}

func (m *muxerFMP4) Close() error {
	return m.f.Close()
}
