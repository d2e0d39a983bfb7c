package capture

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// DefaultCanvasSelectors is the ordered list of selectors probed for a
// rendered whiteboard canvas.
var DefaultCanvasSelectors = []string{
	"canvas#whiteboard",
	"canvas.lesson-board",
	".board-container canvas",
	"canvas",
}

const canvasSelectorTimeout = 2 * time.Second

// CanvasSource captures a rendered canvas element from the agent's embedded
// whiteboard page at a fixed frame rate. Video only; the whiteboard has no
// audio of its own.
type CanvasSource struct {
	page       *rod.Page
	selectors  []string
	frameRate  int
	ffmpegPath string
	log        *zap.Logger
}

// NewCanvasSource creates the canvas capture tier. page may be nil when no
// whiteboard page is open; Acquire then degrades immediately.
func NewCanvasSource(page *rod.Page, ffmpegPath string, frameRate int, log *zap.Logger) *CanvasSource {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if frameRate == 0 {
		frameRate = 15
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CanvasSource{
		page:       page,
		selectors:  DefaultCanvasSelectors,
		frameRate:  frameRate,
		ffmpegPath: ffmpegPath,
		log:        log,
	}
}

// Tag implements Source.
func (c *CanvasSource) Tag() SourceTag { return SourceCanvas }

// Acquire locates a rendered canvas and encodes its frames as a video
// track. A missing canvas or one with zero dimensions is logged and
// reported as an acquisition failure, never thrown further up.
func (c *CanvasSource) Acquire(ctx context.Context) (*Stream, error) {
	if c.page == nil {
		return nil, fmt.Errorf("no whiteboard page open")
	}

	el, err := c.findCanvas()
	if err != nil {
		c.log.Debug("canvas lookup failed", zap.Error(err))
		return nil, err
	}

	videoConn, videoPort, err := listenRTP()
	if err != nil {
		return nil, err
	}
	legs := []rtpLeg{{kind: webrtc.RTPCodecTypeVideo, mime: webrtc.MimeTypeVP8, conn: videoConn}}

	pr, pw := io.Pipe()
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "image2pipe", "-vcodec", "png",
		"-r", fmt.Sprintf("%d", c.frameRate),
		"-i", "-",
		"-c:v", "libvpx", "-deadline", "realtime",
		"-f", "rtp", fmt.Sprintf("rtp://127.0.0.1:%d", videoPort),
	}

	frameCtx, cancelFrames := context.WithCancel(ctx)
	go c.pumpFrames(frameCtx, el, pw)

	stream, err := startRTPPipeline(c.ffmpegPath, args, pr, legs, SourceCanvas, c.log)
	if err != nil {
		cancelFrames()
		_ = pw.Close()
		return nil, err
	}
	// Tie frame pumping to the track lifetime.
	for _, t := range stream.Tracks() {
		inner := t.stop
		t.stop = func() {
			cancelFrames()
			_ = pw.Close()
			if inner != nil {
				inner()
			}
		}
	}
	return stream, nil
}

// findCanvas walks the selector list in order and returns the first canvas
// that is actually rendered (non-zero dimensions).
func (c *CanvasSource) findCanvas() (*rod.Element, error) {
	for _, sel := range c.selectors {
		el, err := c.page.Timeout(canvasSelectorTimeout).Element(sel)
		if err != nil {
			continue
		}
		w, errW := el.Eval(`() => this.width`)
		h, errH := el.Eval(`() => this.height`)
		if errW != nil || errH != nil {
			continue
		}
		if w.Value.Int() == 0 || h.Value.Int() == 0 {
			c.log.Debug("canvas has zero dimensions", zap.String("selector", sel))
			continue
		}
		return el, nil
	}
	return nil, fmt.Errorf("no rendered canvas element found")
}

// pumpFrames screenshots the canvas element at the configured rate and
// feeds the PNG frames into ffmpeg.
func (c *CanvasSource) pumpFrames(ctx context.Context, el *rod.Element, w *io.PipeWriter) {
	defer w.Close()
	ticker := time.NewTicker(time.Second / time.Duration(c.frameRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
			if err != nil {
				c.log.Debug("canvas frame grab failed", zap.Error(err))
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
		}
	}
}
