package capture

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ScreenOptions configures the display grab.
type ScreenOptions struct {
	FFmpegPath string
	Display    string // e.g. ":0.0" (x11grab)
	Width      int
	Height     int
	FrameRate  int
	// AudioDevice captures system audio alongside the display when set
	// (e.g. a pulse monitor source).
	AudioDevice string
}

func (o *ScreenOptions) defaults() {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.Display == "" {
		o.Display = ":0.0"
	}
	if o.Width == 0 {
		o.Width = 1920
	}
	if o.Height == 0 {
		o.Height = 1080
	}
	if o.FrameRate == 0 {
		o.FrameRate = 30
	}
}

// ScreenSource grabs the display, ideally 1080p at 30fps, with optional
// system audio. System audio is taken raw: echo cancellation, noise
// suppression and auto gain are tuned for microphones and degrade system
// audio fidelity, so no audio filter graph is applied.
type ScreenSource struct {
	opts ScreenOptions
	log  *zap.Logger
}

// NewScreenSource creates the screen capture tier.
func NewScreenSource(opts ScreenOptions, log *zap.Logger) *ScreenSource {
	opts.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &ScreenSource{opts: opts, log: log}
}

// Tag implements Source.
func (s *ScreenSource) Tag() SourceTag { return SourceScreen }

// Acquire starts the display grab. Any failure here means the user's setup
// cannot share the screen right now; the composer degrades to the next
// tier.
func (s *ScreenSource) Acquire(ctx context.Context) (*Stream, error) {
	videoConn, videoPort, err := listenRTP()
	if err != nil {
		return nil, err
	}
	legs := []rtpLeg{{kind: webrtc.RTPCodecTypeVideo, mime: webrtc.MimeTypeVP8, conn: videoConn}}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "x11grab",
		"-framerate", fmt.Sprintf("%d", s.opts.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", s.opts.Width, s.opts.Height),
		"-i", s.opts.Display,
	}
	if s.opts.AudioDevice != "" {
		audioConn, audioPort, err := listenRTP()
		if err != nil {
			closeLegs(legs)
			return nil, err
		}
		legs = append(legs, rtpLeg{kind: webrtc.RTPCodecTypeAudio, mime: webrtc.MimeTypeOpus, conn: audioConn})
		args = append(args, "-f", "pulse", "-i", s.opts.AudioDevice)
		args = append(args,
			"-map", "0:v", "-c:v", "libvpx", "-deadline", "realtime", "-b:v", "2500k",
			"-f", "rtp", fmt.Sprintf("rtp://127.0.0.1:%d", videoPort),
			"-map", "1:a", "-c:a", "libopus", "-b:a", "128k",
			"-f", "rtp", fmt.Sprintf("rtp://127.0.0.1:%d", audioPort),
		)
	} else {
		args = append(args,
			"-an", "-c:v", "libvpx", "-deadline", "realtime", "-b:v", "2500k",
			"-f", "rtp", fmt.Sprintf("rtp://127.0.0.1:%d", videoPort),
		)
	}

	return startRTPPipeline(s.opts.FFmpegPath, args, nil, legs, SourceScreen, s.log)
}
