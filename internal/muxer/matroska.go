package muxer

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"

	"github.com/Icey-Glitch/mpv/internal/defs"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/packet"
)

const (
	matroskaTrackTypeVideo    = 1
	matroskaTrackTypeAudio    = 2
	matroskaTrackTypeSubtitle = 0x11
)

// nopWriteCloser keeps the block writers from closing the destination
// file, whose lifetime is managed by the muxer.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

type muxerMatroska struct {
	parent logger.Writer

	f       *os.File
	isWebM  bool
	entries []webm.TrackEntry
	writers []webm.BlockWriteCloser
}

func newMuxerMatroska(destination string, parent logger.Writer) (*muxerMatroska, error) {
	f, err := os.Create(destination)
	if err != nil {
		return nil, err
	}

	return &muxerMatroska{
		parent: parent,
		f:      f,
		isWebM: strings.ToLower(filepath.Ext(destination)) == ".webm",
	}, nil
}

func matroskaCodecID(codec *defs.Codec, isWebM bool) (string, int, error) {
	format := "matroska"
	if isWebM {
		format = "webm"
	}

	switch codec.Name {
	case "vp8":
		return "V_VP8", matroskaTrackTypeVideo, nil

	case "vp9":
		return "V_VP9", matroskaTrackTypeVideo, nil

	case "av1":
		return "V_AV1", matroskaTrackTypeVideo, nil

	case "opus":
		return "A_OPUS", matroskaTrackTypeAudio, nil

	case "webvtt":
		return "S_TEXT/WEBVTT", matroskaTrackTypeSubtitle, nil
	}

	// WebM is a restricted profile of Matroska; the remaining codecs
	// are valid in .mkv only.
	if !isWebM {
		switch codec.Name {
		case "h264":
			return "V_MPEG4/ISO/AVC", matroskaTrackTypeVideo, nil

		case "h265":
			return "V_MPEGH/ISO/HEVC", matroskaTrackTypeVideo, nil

		case "aac":
			return "A_AAC", matroskaTrackTypeAudio, nil

		case "ac3":
			return "A_AC3", matroskaTrackTypeAudio, nil

		case "text":
			return "S_TEXT/UTF8", matroskaTrackTypeSubtitle, nil
		}
	}

	return "", 0, UnsupportedCodecError{Codec: codec.Name, Format: format}
}

func (m *muxerMatroska) AddTrack(codec *defs.Codec) (int, error) {
	codecID, trackType, err := matroskaCodecID(codec, m.isWebM)
	if err != nil {
		return 0, err
	}

	n := uint64(len(m.entries) + 1)

	entry := webm.TrackEntry{
		Name:        codec.Name,
		TrackNumber: n,
		TrackUID:    n,
		CodecID:     codecID,
		TrackType:   uint64(trackType),
	}

	if len(codec.Extradata) >= 1 {
		entry.CodecPrivate = codec.Extradata[0]
	}

	switch trackType {
	case matroskaTrackTypeVideo:
		entry.Video = &webm.Video{
			PixelWidth:  uint64(codec.Width),
			PixelHeight: uint64(codec.Height),
		}

	case matroskaTrackTypeAudio:
		entry.Audio = &webm.Audio{
			SamplingFrequency: float64(codec.SampleRate),
			Channels:          uint64(codec.ChannelCount),
		}
	}

	m.entries = append(m.entries, entry)
	return len(m.entries) - 1, nil
}

func (m *muxerMatroska) AddAttachment(att *defs.Attachment) error {
	// ebml-go has no support for the Attachments element.
	m.parent.Log(logger.Warn, "attachments are not supported; skipping '%s'", att.Name)
	return nil
}

func (m *muxerMatroska) WriteHeader(metadata map[string]string) error {
	info := &webm.Info{
		TimecodeScale: 1000000, // 1ms
		MuxingApp:     "ebml-go",
		DateUTC:       time.Now(),
	}
	if tool, ok := metadata["encoding_tool"]; ok {
		info.WritingApp = tool
	}

	opts := []mkvcore.BlockWriterOption{
		mkvcore.WithSegmentInfo(info),
	}

	if !m.isWebM {
		opts = append(opts, mkvcore.WithEBMLHeader(&webm.EBMLHeader{
			EBMLVersion:        1,
			EBMLReadVersion:    1,
			EBMLMaxIDLength:    4,
			EBMLMaxSizeLength:  8,
			DocType:            "matroska",
			DocTypeVersion:     4,
			DocTypeReadVersion: 2,
		}))
	}

	writers, err := webm.NewSimpleBlockWriter(nopWriteCloser{m.f}, m.entries, opts...)
	if err != nil {
		return err
	}

	m.writers = writers
	return nil
}

func (m *muxerMatroska) WritePacket(trackID int, pkt *packet.Packet) error {
	if pkt.PTS == packet.NoPTS {
		return ErrNoTimestamp
	}

	pts := pkt.PTS
	if pts < 0 {
		pts = 0
	}

	_, err := m.writers[trackID].Write(pkt.Keyframe, int64(pts*1000), pkt.Payload)
	return err
}

func (m *muxerMatroska) WriteTrailer() error {
	// closing the block writers finalizes the segment.
	var firstErr error
	for _, w := range m.writers {
		err := w.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.writers = nil
	return firstErr
}

func (m *muxerMatroska) Close() error {
	for _, w := range m.writers {
		w.Close() //nolint:errcheck
	}
	m.writers = nil
	return m.f.Close()
}
