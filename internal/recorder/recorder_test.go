package recorder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Icey-Glitch/mpv/internal/defs"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/packet"
	"github.com/Icey-Glitch/mpv/internal/test"
)

type dummyWrite struct {
	trackID  int
	pts      float64
	dts      float64
	duration float64
	keyframe bool
	payload  []byte
}

type dummyMuxer struct {
	failHeader bool
	failCodec  string

	tracks         []*defs.Codec
	attachments    []*defs.Attachment
	headerWritten  bool
	trailerWritten bool
	closed         bool
	writes         []dummyWrite
}

func (m *dummyMuxer) AddTrack(codec *defs.Codec) (int, error) {
	if codec.Name == m.failCodec {
		return 0, fmt.Errorf("codec %s cannot be muxed", codec.Name)
	}
	m.tracks = append(m.tracks, codec)
	return len(m.tracks) - 1, nil
}

func (m *dummyMuxer) AddAttachment(att *defs.Attachment) error {
	m.attachments = append(m.attachments, att)
	return nil
}

func (m *dummyMuxer) WriteHeader(_ map[string]string) error {
	if m.failHeader {
		return fmt.Errorf("header write failed")
	}
	m.headerWritten = true
	return nil
}

func (m *dummyMuxer) WritePacket(trackID int, pkt *packet.Packet) error {
	m.writes = append(m.writes, dummyWrite{
		trackID:  trackID,
		pts:      pkt.PTS,
		dts:      pkt.DTS,
		duration: pkt.Duration,
		keyframe: pkt.Keyframe,
		payload:  append([]byte(nil), pkt.Payload...),
	})
	return nil
}

func (m *dummyMuxer) WriteTrailer() error {
	m.trailerWritten = true
	return nil
}

func (m *dummyMuxer) Close() error {
	m.closed = true
	return nil
}

func videoStream() *defs.Stream {
	return &defs.Stream{
		ID: 0,
		Codec: defs.Codec{
			Name: "h264",
			Type: defs.StreamTypeVideo,
		},
	}
}

func audioStream() *defs.Stream {
	return &defs.Stream{
		ID: 1,
		Codec: defs.Codec{
			Name:         "aac",
			Type:         defs.StreamTypeAudio,
			SampleRate:   48000,
			ChannelCount: 2,
		},
	}
}

func subtitleStream() *defs.Stream {
	return &defs.Stream{
		ID: 2,
		Codec: defs.Codec{
			Name: "text",
			Type: defs.StreamTypeSubtitle,
		},
	}
}

func videoPacket(pts float64, keyframe bool) *packet.Packet {
	return &packet.Packet{
		PTS:      pts,
		DTS:      pts,
		Duration: 0.1,
		Keyframe: keyframe,
		Payload:  []byte{1, 2, 3},
	}
}

// audio and subtitle packets are self-contained, demuxers mark them
// all as keyframes.
func audioPacket(pts float64) *packet.Packet {
	return &packet.Packet{
		PTS:      pts,
		DTS:      pts,
		Duration: 0.02,
		Keyframe: true,
		Payload:  []byte{4},
	}
}

func subtitlePacket(pts float64, text string) *packet.Packet {
	return &packet.Packet{
		PTS:      pts,
		DTS:      packet.NoPTS,
		Duration: 2,
		Keyframe: true,
		Payload:  []byte(text),
	}
}

func TestInitializeNoStreams(t *testing.T) {
	r := &Recorder{
		Destination: "out.mkv",
		Parent:      test.NilLogger,
	}
	err := r.Initialize()
	require.EqualError(t, err, "no streams")
}

func TestInitializeUnsupportedCodec(t *testing.T) {
	mux := &dummyMuxer{failCodec: "h264"}

	r := &Recorder{
		Streams: []*defs.Stream{videoStream()},
		Parent:  test.NilLogger,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.Error(t, err)
	require.True(t, mux.closed)
	require.False(t, mux.headerWritten)
}

func TestCloseAfterFailedInitialize(t *testing.T) {
	mux := &dummyMuxer{failHeader: true}

	r := &Recorder{
		Streams: []*defs.Stream{videoStream()},
		Parent:  test.NilLogger,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.Error(t, err)
	require.True(t, mux.closed)

	// a session that never opened must not be finalized.
	r.Close()
	require.False(t, mux.trailerWritten)
}

func TestGatingThreshold(t *testing.T) {
	mux := &dummyMuxer{}

	video := videoStream()
	audio := audioStream()

	r := &Recorder{
		Streams: []*defs.Stream{video, audio},
		Parent:  test.NilLogger,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	videoSink := r.FindSink(video)
	require.NotNil(t, videoSink)
	audioSink := r.FindSink(audio)
	require.NotNil(t, audioSink)

	audioSink.Feed(audioPacket(0))

	for i := 0; i < queueMinPackets-1; i++ {
		videoSink.Feed(videoPacket(float64(i)*0.1, i == 0))
		require.Empty(t, mux.writes)
	}

	videoSink.Feed(videoPacket(float64(queueMinPackets-1)*0.1, false))
	require.Equal(t, queueMinPackets, len(mux.writes))

	// within one segment, output timestamps equal source timestamps
	// shifted by a constant; here the shift is zero.
	for i, w := range mux.writes {
		require.Equal(t, 0, w.trackID)
		require.Equal(t, float64(i)*0.1, w.pts)
	}
}

func TestEndOfStreamBypassesGating(t *testing.T) {
	mux := &dummyMuxer{}

	video := videoStream()
	audio := audioStream()

	r := &Recorder{
		Streams: []*defs.Stream{video, audio},
		Parent:  test.NilLogger,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.NoError(t, err)

	videoSink := r.FindSink(video)
	audioSink := r.FindSink(audio)

	// too few packets for the video threshold.
	for i := 0; i < 5; i++ {
		videoSink.Feed(videoPacket(float64(i)*0.1, i == 0))
	}
	audioSink.Feed(audioPacket(0))
	require.Empty(t, mux.writes)

	videoSink.Feed(nil)
	require.Equal(t, 5, len(mux.writes))

	r.Close()
	require.Equal(t, 6, len(mux.writes))
	require.True(t, mux.trailerWritten)
	require.True(t, mux.closed)
}

func TestSubtitlesNeverGate(t *testing.T) {
	mux := &dummyMuxer{}

	video := videoStream()
	sub := subtitleStream()

	r := &Recorder{
		Streams: []*defs.Stream{video, sub},
		Parent:  test.NilLogger,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	videoSink := r.FindSink(video)

	for i := 0; i < queueMinPackets; i++ {
		videoSink.Feed(videoPacket(float64(i)*0.1, i == 0))
	}
	require.Equal(t, queueMinPackets, len(mux.writes))
}

func TestRebaseAcrossDiscontinuity(t *testing.T) {
	mux := &dummyMuxer{}

	video := videoStream()
	audio := audioStream()
	sub := subtitleStream()

	r := &Recorder{
		Streams: []*defs.Stream{video, audio, sub},
		Parent:  test.NilLogger,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	videoSink := r.FindSink(video)
	audioSink := r.FindSink(audio)
	subSink := r.FindSink(sub)

	// first segment, aligned at 0.0.
	audioSink.Feed(audioPacket(0))
	subSink.Feed(subtitlePacket(0, "a"))
	for i := 0; i < queueMinPackets; i++ {
		videoSink.Feed(videoPacket(float64(i)*0.1, i == 0))
	}
	require.NotEmpty(t, mux.writes)

	// advance the committed timestamps to {video: 9.9, audio: 10.0,
	// subtitle: 9.5}.
	videoSink.Feed(videoPacket(9.9, true))
	audioSink.Feed(audioPacket(10.0))
	subSink.Feed(subtitlePacket(9.5, "b"))

	r.MarkDiscontinuity()

	mux.writes = nil

	// new packets after the gap, starting at 50.0.
	audioSink.Feed(audioPacket(50.0))
	subSink.Feed(subtitlePacket(50.0, "c"))
	require.Empty(t, mux.writes)

	for i := 0; i < queueMinPackets; i++ {
		videoSink.Feed(videoPacket(50.0+float64(i)*0.1, i == 0))
	}

	// the new segment is anchored at the prior maximum: output = 10.0 +
	// (source - 50.0).
	require.Equal(t, queueMinPackets, len(mux.writes))
	for i, w := range mux.writes {
		require.Equal(t, 0, w.trackID)
		require.InDelta(t, 10.0+float64(i)*0.1, w.pts, 1e-9)
		require.InDelta(t, w.pts-w.dts, 0.0, 1e-9)
	}

	// queued audio and subtitle packets drain with the same offset.
	mux.writes = nil
	audioSink.Feed(audioPacket(50.5))
	require.Equal(t, 2, len(mux.writes))
	require.InDelta(t, 10.0, mux.writes[0].pts, 1e-9)
	require.InDelta(t, 10.5, mux.writes[1].pts, 1e-9)
}

func TestDiscontinuityGate(t *testing.T) {
	mux := &dummyMuxer{}

	video := videoStream()

	r := &Recorder{
		Streams: []*defs.Stream{video},
		Parent:  test.NilLogger,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	videoSink := r.FindSink(video)

	for i := 0; i < queueMinPackets; i++ {
		videoSink.Feed(videoPacket(float64(i)*0.1, i == 0))
	}
	require.Equal(t, queueMinPackets, len(mux.writes))

	r.MarkDiscontinuity()
	mux.writes = nil

	// non-keyframes are dropped until a keyframe arrives.
	videoSink.Feed(videoPacket(20.0, false))
	videoSink.Feed(videoPacket(20.1, false))

	for i := 0; i < queueMinPackets; i++ {
		videoSink.Feed(videoPacket(21.0+float64(i)*0.1, i == 0))
	}

	// the new anchor is the highest timestamp of the first segment
	// (1.5), not the timestamps of the dropped packets.
	require.Equal(t, queueMinPackets, len(mux.writes))
	for i, w := range mux.writes {
		require.InDelta(t, 1.5+float64(i)*0.1, w.pts, 1e-9)
	}
}

func TestOverflowDrop(t *testing.T) {
	mux := &dummyMuxer{}

	video := videoStream()
	audio := audioStream()

	var dropLogged int
	log := test.Logger(func(_ logger.Level, format string, _ ...interface{}) {
		if format == "[recorder] stream %d has too many queued packets; dropping" {
			dropLogged++
		}
	})

	r := &Recorder{
		Streams: []*defs.Stream{video, audio},
		Parent:  log,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.NoError(t, err)

	videoSink := r.FindSink(video)
	audioSink := r.FindSink(audio)

	// audio never feeds, so muxing cannot start and the video queue
	// fills up.
	for i := 0; i < queueMaxPackets+10; i++ {
		videoSink.Feed(videoPacket(float64(i)*0.1, i == 0))
	}
	require.Equal(t, 10, dropLogged)
	require.Equal(t, queueMaxPackets, r.Pool.Retained())
	require.Empty(t, mux.writes)

	audioSink.Feed(audioPacket(0))

	r.Close()
	require.Equal(t, queueMaxPackets+1, len(mux.writes))

	// retained ordering survives the drop.
	last := -1.0
	var videoWrites int
	for _, w := range mux.writes {
		if w.trackID != 0 {
			continue
		}
		require.Greater(t, w.pts, last)
		last = w.pts
		videoWrites++
	}
	require.Equal(t, queueMaxPackets, videoWrites)

	require.Zero(t, r.Pool.Retained())
}

func TestDurationNormalization(t *testing.T) {
	mux := &dummyMuxer{}

	audio := audioStream()
	sub := subtitleStream()

	r := &Recorder{
		Streams: []*defs.Stream{audio, sub},
		Parent:  test.NilLogger,
		Muxer:   mux,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	r.FindSink(audio).Feed(&packet.Packet{
		PTS:      0,
		DTS:      0,
		Duration: packet.NoPTS,
		Keyframe: true,
		Payload:  []byte{4},
	})
	r.FindSink(sub).Feed(&packet.Packet{
		PTS:      0,
		DTS:      0,
		Duration: packet.NoPTS,
		Keyframe: true,
		Payload:  []byte("a"),
	})

	require.Equal(t, 2, len(mux.writes))
	require.Equal(t, 0.0, mux.writes[0].duration)
	require.Equal(t, packet.NoPTS, mux.writes[1].duration)
}

func TestAttachments(t *testing.T) {
	mux := &dummyMuxer{}

	r := &Recorder{
		Streams: []*defs.Stream{audioStream()},
		Attachments: []*defs.Attachment{{
			Name:     "font.ttf",
			MIMEType: "font/ttf",
			Data:     []byte{1, 2, 3},
		}},
		Parent: test.NilLogger,
		Muxer:  mux,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 1, len(mux.attachments))
	require.True(t, mux.headerWritten)
}
