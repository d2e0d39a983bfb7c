package capture

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// DeviceOptions configures camera and microphone capture.
type DeviceOptions struct {
	FFmpegPath  string
	VideoDevice string // e.g. "/dev/video0" (v4l2)
	AudioDevice string // e.g. "default" (pulse)
	Width       int
	Height      int
	FrameRate   int
}

func (o *DeviceOptions) defaults() {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.VideoDevice == "" {
		o.VideoDevice = "/dev/video0"
	}
	if o.AudioDevice == "" {
		o.AudioDevice = "default"
	}
	if o.Width == 0 {
		o.Width = 1280
	}
	if o.Height == 0 {
		o.Height = 720
	}
	if o.FrameRate == 0 {
		o.FrameRate = 30
	}
}

// DeviceSource captures the local camera and microphone. Its stream is both
// the composer's local input and the last-resort video tier.
type DeviceSource struct {
	opts DeviceOptions
	log  *zap.Logger
}

// NewDeviceSource creates the local device capture.
func NewDeviceSource(opts DeviceOptions, log *zap.Logger) *DeviceSource {
	opts.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &DeviceSource{opts: opts, log: log}
}

// Tag implements Source.
func (d *DeviceSource) Tag() SourceTag { return SourceCamera }

// Acquire opens camera and microphone. Failure means the devices are absent
// or busy; callers degrade (a live session without local recording input is
// still a live session).
func (d *DeviceSource) Acquire(ctx context.Context) (*Stream, error) {
	videoConn, videoPort, err := listenRTP()
	if err != nil {
		return nil, err
	}
	audioConn, audioPort, err := listenRTP()
	if err != nil {
		_ = videoConn.Close()
		return nil, err
	}
	legs := []rtpLeg{
		{kind: webrtc.RTPCodecTypeVideo, mime: webrtc.MimeTypeVP8, conn: videoConn},
		{kind: webrtc.RTPCodecTypeAudio, mime: webrtc.MimeTypeOpus, conn: audioConn},
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", fmt.Sprintf("%d", d.opts.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", d.opts.Width, d.opts.Height),
		"-i", d.opts.VideoDevice,
		"-f", "pulse", "-i", d.opts.AudioDevice,
		"-map", "0:v", "-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1500k",
		"-f", "rtp", fmt.Sprintf("rtp://127.0.0.1:%d", videoPort),
		"-map", "1:a", "-c:a", "libopus", "-b:a", "96k",
		"-f", "rtp", fmt.Sprintf("rtp://127.0.0.1:%d", audioPort),
	}

	return startRTPPipeline(d.opts.FFmpegPath, args, nil, legs, SourceCamera, d.log)
}
