package capture

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const muxerListing = `Muxers:
 E  matroska  Matroska
 E  webm      WebM
 E  mp4       MP4 (MPEG-4 Part 14)
`

func encoderListing(names ...string) string {
	out := "Encoders:\n"
	for _, n := range names {
		out += " V..... " + n + " encoder\n"
	}
	return out
}

func stubProbe(t *testing.T, ffmpegPresent bool, muxers, encoders string) *Probe {
	t.Helper()
	p := NewProbe("ffmpeg", nil)
	p.lookPath = func(string) (string, error) {
		if !ffmpegPresent {
			return "", errors.New("executable file not found in $PATH")
		}
		return "/usr/bin/ffmpeg", nil
	}
	p.listCaps = func(path, flag string) (string, error) {
		if flag == "-muxers" {
			return muxers, nil
		}
		return encoders, nil
	}
	return p
}

func TestProbeMissingFFmpeg(t *testing.T) {
	p := stubProbe(t, false, muxerListing, encoderListing("libvpx-vp9", "libopus"))
	assert.False(t, p.Supported())
	_, ok := p.BestProfile()
	assert.False(t, ok)
}

func TestProbePicksVP9First(t *testing.T) {
	p := stubProbe(t, true, muxerListing, encoderListing("libvpx-vp9", "libvpx", "libopus", "libx264", "aac"))
	require.True(t, p.Supported())

	profile, ok := p.BestProfile()
	require.True(t, ok)
	assert.Equal(t, "webm", profile.Container)
	assert.Equal(t, webrtc.MimeTypeVP9, profile.VideoCodec)
	assert.Equal(t, "libvpx-vp9", profile.FFmpegVideoEncoder())
	assert.Equal(t, "libopus", profile.FFmpegAudioEncoder())
}

func TestProbeFallsBackToVP8(t *testing.T) {
	p := stubProbe(t, true, muxerListing, encoderListing("libvpx", "libopus"))
	profile, ok := p.BestProfile()
	require.True(t, ok)
	assert.Equal(t, webrtc.MimeTypeVP8, profile.VideoCodec)
}

func TestProbeFallsBackToGenericWebm(t *testing.T) {
	// Muxer present, no vpx/opus encoders at all.
	p := stubProbe(t, true, muxerListing, encoderListing("mpeg4"))
	profile, ok := p.BestProfile()
	require.True(t, ok)
	assert.Equal(t, "webm", profile.Container)
	assert.Empty(t, profile.VideoCodec)
}

func TestProbeFallsBackToMP4WhenWebmMissing(t *testing.T) {
	p := stubProbe(t, true, "Muxers:\n E  mp4  MP4\n", encoderListing("libx264", "aac"))
	profile, ok := p.BestProfile()
	require.True(t, ok)
	assert.Equal(t, "mp4", profile.Container)
	assert.Equal(t, webrtc.MimeTypeH264, profile.VideoCodec)
}

func TestProbeNothingSupported(t *testing.T) {
	p := stubProbe(t, true, "Muxers:\n E  ogg  Ogg\n", encoderListing("flac"))
	assert.True(t, p.Supported(), "ffmpeg itself is present")
	_, ok := p.BestProfile()
	assert.False(t, ok)
}

func TestProbeDetectsOnlyOnce(t *testing.T) {
	calls := 0
	p := NewProbe("ffmpeg", nil)
	p.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }
	p.listCaps = func(path, flag string) (string, error) {
		calls++
		return muxerListing, nil
	}

	p.Supported()
	p.Supported()
	p.BestProfile()
	assert.Equal(t, 2, calls, "one -muxers call and one -encoders call, cached after that")
}

func TestCollectNames(t *testing.T) {
	into := make(map[string]bool)
	collectNames(muxerListing, into)
	assert.True(t, into["webm"])
	assert.True(t, into["mp4"])
	assert.False(t, into["ogg"])
}
