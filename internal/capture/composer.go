package capture

import (
	"context"

	"go.uber.org/zap"
)

// Composer folds over the capture tiers and merges the winning video source
// with at most one audio track into a single recordable stream.
type Composer struct {
	screen Source
	canvas Source
	log    *zap.Logger
}

// NewComposer creates a composer over the screen and canvas tiers. Either
// may be nil when the tier is not available on this machine.
func NewComposer(screen, canvas Source, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{screen: screen, canvas: canvas, log: log}
}

// Compose builds the recordable stream. local is the already-acquired
// camera+mic stream and may be nil; preferScreen puts the screen tier
// first. Returns nil when no tier produced a usable track, which callers
// must treat as recording being unavailable, not as an error of the live
// session itself.
//
// Audio is independent of the video priority: when the chosen video source
// already carries audio (system audio from a screen capture), the local
// microphone is left out to avoid doubled audio.
func (c *Composer) Compose(ctx context.Context, local *Stream, preferScreen bool) *Stream {
	chosen := c.acquireVideo(ctx, preferScreen)

	var tracks []*Track
	switch {
	case chosen != nil:
		tracks = append(tracks, chosen.VideoTracks()...)
	case local != nil && len(local.VideoTracks()) > 0:
		// Last resort: the camera track from the supplied local stream.
		tracks = append(tracks, local.VideoTracks()...)
	}

	switch {
	case chosen != nil && len(chosen.AudioTracks()) > 0:
		tracks = append(tracks, chosen.AudioTracks()...)
	case local != nil && len(local.AudioTracks()) > 0:
		tracks = append(tracks, local.AudioTracks()...)
	}

	if len(tracks) == 0 {
		c.log.Info("no usable capture source, recording unavailable")
		return nil
	}
	return NewStream(tracks...)
}

// acquireVideo walks the priority tiers and returns the first stream with a
// usable video track. Each failure degrades silently to the next tier.
func (c *Composer) acquireVideo(ctx context.Context, preferScreen bool) *Stream {
	var tiers []Source
	if preferScreen && c.screen != nil {
		tiers = append(tiers, c.screen)
	}
	if c.canvas != nil {
		tiers = append(tiers, c.canvas)
	}

	for _, src := range tiers {
		stream, err := src.Acquire(ctx)
		if err != nil {
			// Declined permission, missing canvas, dead display: all just
			// degrade to the next tier.
			c.log.Debug("capture tier unavailable", zap.String("source", string(src.Tag())), zap.Error(err))
			continue
		}
		if len(stream.VideoTracks()) == 0 {
			stream.Close()
			c.log.Debug("capture tier yielded no video", zap.String("source", string(src.Tag())))
			continue
		}
		return stream
	}
	return nil
}
