// Package capture assembles a recordable media stream from competing,
// priority-ordered capture sources: screen share, rendered whiteboard
// canvas, then the local camera. Capture failures degrade silently to the
// next tier; recording is an optional enhancement to a live session, never
// a precondition for it.
package capture

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v3"
)

// SourceTag identifies where a track was captured from.
type SourceTag string

const (
	SourceScreen SourceTag = "SCREEN"
	SourceCanvas SourceTag = "CANVAS"
	SourceCamera SourceTag = "CAMERA"
)

// RTPReader yields raw RTP packets from a capture pipeline.
type RTPReader interface {
	ReadRTP() ([]byte, error)
}

// Track is one tagged media track. The stop function releases whatever
// device or process backs the track; stopping twice is safe.
type Track struct {
	Kind     webrtc.RTPCodecType
	MimeType string
	Origin   SourceTag

	rtp      RTPReader
	stopOnce sync.Once
	stop     func()
}

// NewTrack wraps an RTP pipeline as a track.
func NewTrack(kind webrtc.RTPCodecType, mimeType string, origin SourceTag, rtp RTPReader, stop func()) *Track {
	return &Track{Kind: kind, MimeType: mimeType, Origin: origin, rtp: rtp, stop: stop}
}

// ReadRTP returns the next RTP packet from the track's pipeline.
func (t *Track) ReadRTP() ([]byte, error) {
	if t.rtp == nil {
		return nil, ErrNoPipeline
	}
	return t.rtp.ReadRTP()
}

// Stop releases the track's capture backend. Idempotent.
func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		if t.stop != nil {
			t.stop()
		}
	})
}

// Stream is an owned set of tracks. Whoever holds a stream must Close it on
// every exit path, or the underlying camera/microphone/screen capture stays
// locked.
type Stream struct {
	tracks []*Track
}

// NewStream builds a stream over the given tracks.
func NewStream(tracks ...*Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns all tracks.
func (s *Stream) Tracks() []*Track { return s.tracks }

// VideoTracks returns the video tracks.
func (s *Stream) VideoTracks() []*Track { return s.byKind(webrtc.RTPCodecTypeVideo) }

// AudioTracks returns the audio tracks.
func (s *Stream) AudioTracks() []*Track { return s.byKind(webrtc.RTPCodecTypeAudio) }

func (s *Stream) byKind(kind webrtc.RTPCodecType) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Close stops every track. Safe to call more than once.
func (s *Stream) Close() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Source acquires a stream from one capture tier.
type Source interface {
	Tag() SourceTag
	Acquire(ctx context.Context) (*Stream, error)
}
