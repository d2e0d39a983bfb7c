package capture

import (
	"os/exec"
	"strings"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Profile is one container/codec pairing the recorder can produce.
type Profile struct {
	Container  string `json:"container"`
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`

	// ffmpeg names needed for this profile.
	muxer        string
	videoEncoder string
	audioEncoder string
}

// FFmpegVideoEncoder is the ffmpeg encoder backing the video codec.
func (p Profile) FFmpegVideoEncoder() string { return p.videoEncoder }

// FFmpegAudioEncoder is the ffmpeg encoder backing the audio codec.
func (p Profile) FFmpegAudioEncoder() string { return p.audioEncoder }

// DefaultProfiles, most compression-efficient first.
var DefaultProfiles = []Profile{
	{Container: "webm", VideoCodec: webrtc.MimeTypeVP9, AudioCodec: webrtc.MimeTypeOpus, muxer: "webm", videoEncoder: "libvpx-vp9", audioEncoder: "libopus"},
	{Container: "webm", VideoCodec: webrtc.MimeTypeVP8, AudioCodec: webrtc.MimeTypeOpus, muxer: "webm", videoEncoder: "libvpx", audioEncoder: "libopus"},
	{Container: "webm", muxer: "webm"},
	{Container: "mp4", VideoCodec: webrtc.MimeTypeH264, AudioCodec: "audio/aac", muxer: "mp4", videoEncoder: "libx264", audioEncoder: "aac"},
}

// Probe detects what the local ffmpeg install can record. Pure capability
// detection, no side effects beyond running ffmpeg's listing commands once.
type Probe struct {
	ffmpegPath string
	profiles   []Profile
	log        *zap.Logger

	lookPath func(string) (string, error)
	listCaps func(path, flag string) (string, error)

	once     sync.Once
	present  bool
	muxers   map[string]bool
	encoders map[string]bool
}

// NewProbe creates a capability probe for the given ffmpeg binary.
func NewProbe(ffmpegPath string, log *zap.Logger) *Probe {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Probe{
		ffmpegPath: ffmpegPath,
		profiles:   DefaultProfiles,
		log:        log,
		lookPath:   exec.LookPath,
		listCaps:   runListing,
	}
}

func runListing(path, flag string) (string, error) {
	out, err := exec.Command(path, "-hide_banner", flag).Output()
	return string(out), err
}

func (p *Probe) detect() {
	p.once.Do(func() {
		p.muxers = make(map[string]bool)
		p.encoders = make(map[string]bool)
		if _, err := p.lookPath(p.ffmpegPath); err != nil {
			p.log.Debug("recording unavailable", zap.String("ffmpeg", p.ffmpegPath), zap.Error(err))
			return
		}
		p.present = true
		if out, err := p.listCaps(p.ffmpegPath, "-muxers"); err == nil {
			collectNames(out, p.muxers)
		}
		if out, err := p.listCaps(p.ffmpegPath, "-encoders"); err == nil {
			collectNames(out, p.encoders)
		}
	})
}

// collectNames pulls the name column out of ffmpeg's -muxers/-encoders
// listing (lines like " E  webm ..." or " V..... libvpx-vp9 ...").
func collectNames(listing string, into map[string]bool) {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		into[fields[1]] = true
	}
}

// Supported reports whether stream recording is possible at all.
func (p *Probe) Supported() bool {
	p.detect()
	return p.present
}

func (p *Probe) supports(profile Profile) bool {
	if profile.muxer != "" && !p.muxers[profile.muxer] {
		return false
	}
	if profile.videoEncoder != "" && !p.encoders[profile.videoEncoder] {
		return false
	}
	if profile.audioEncoder != "" && !p.encoders[profile.audioEncoder] {
		return false
	}
	return true
}

// BestProfile returns the first supported profile in preference order, or
// false when nothing is supported.
func (p *Probe) BestProfile() (Profile, bool) {
	p.detect()
	if !p.present {
		return Profile{}, false
	}
	for _, profile := range p.profiles {
		if p.supports(profile) {
			return profile, true
		}
	}
	return Profile{}, false
}
