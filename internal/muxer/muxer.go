// Package muxer contains the container writers.
package muxer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Icey-Glitch/mpv/internal/defs"
	"github.com/Icey-Glitch/mpv/internal/logger"
	"github.com/Icey-Glitch/mpv/internal/packet"
)

// ErrNoTimestamp is returned when a packet cannot be placed on the
// container timeline because it carries no presentation timestamp.
var ErrNoTimestamp = fmt.Errorf("packet has no presentation timestamp")

// UnsupportedCodecError is returned by AddTrack when the container
// format cannot represent the given codec.
type UnsupportedCodecError struct {
	Codec  string
	Format string
}

// Error implements the error interface.
func (e UnsupportedCodecError) Error() string {
	return fmt.Sprintf("codec %s cannot be muxed into %s", e.Codec, e.Format)
}

// Muxer writes finalized, offset-corrected packets into a container.
//
// Usage: AddTrack for every stream, optionally AddAttachment, then
// WriteHeader once, WritePacket any number of times, WriteTrailer,
// Close. Close is safe to call at any stage.
type Muxer interface {
	// AddTrack registers an output track and returns its identifier.
	AddTrack(codec *defs.Codec) (int, error)

	// AddAttachment embeds a file into the container, when the format
	// supports it.
	AddAttachment(att *defs.Attachment) error

	// WriteHeader writes the container header.
	WriteHeader(metadata map[string]string) error

	// WritePacket writes a packet of the given track. Timestamps must
	// already be in the output timeline.
	WritePacket(trackID int, pkt *packet.Packet) error

	// WriteTrailer finalizes the container.
	WriteTrailer() error

	// Close releases all resources. It does not finalize the
	// container; call WriteTrailer first if the output must be valid.
	Close() error
}

// Open creates the destination file and returns a Muxer for it.
// The container format is inferred from the destination extension.
func Open(destination string, parent logger.Writer) (Muxer, error) {
	switch strings.ToLower(filepath.Ext(destination)) {
	case ".ts", ".mts", ".m2ts":
		return newMuxerMPEGTS(destination, parent)

	case ".mp4", ".m4v", ".mov":
		return newMuxerFMP4(destination, parent)

	case ".mkv", ".webm":
		return newMuxerMatroska(destination, parent)

	default:
		return nil, fmt.Errorf("output format not found for '%s'", destination)
	}
}
