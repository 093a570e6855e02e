// Package defs contains shared definitions.
package defs

import "fmt"

// StreamType is the media type of a source stream.
type StreamType int

// stream types.
const (
	StreamTypeVideo StreamType = iota
	StreamTypeAudio
	StreamTypeSubtitle
)

// String implements fmt.Stringer.
func (t StreamType) String() string {
	switch t {
	case StreamTypeVideo:
		return "video"
	case StreamTypeAudio:
		return "audio"
	case StreamTypeSubtitle:
		return "subtitle"
	}
	return fmt.Sprintf("unknown (%d)", int(t))
}

// Codec describes the codec of a source stream, in a
// container-independent way.
type Codec struct {
	// codec identifier ("h264", "h265", "aac", "ac3", "opus",
	// "vp8", "vp9", "av1", "webvtt", ...)
	Name string

	Type StreamType

	// units per second of the source timestamps of this stream
	ClockRate int

	// video only
	Width  int
	Height int

	// audio only
	SampleRate   int
	ChannelCount int

	// codec-specific initialization data, when available
	// (for instance SPS/PPS for H264)
	Extradata [][]byte
}

// Stream is a source stream handed to the recorder.
// The recorder identifies streams by pointer, like the demuxer that
// produced them.
type Stream struct {
	ID    int
	Codec Codec
}

// Attachment is a file embedded into the output container at setup
// time (for instance a subtitle font).
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}
