// Package recorder records a live session from the composed capture stream
// by forwarding its RTP into an ffmpeg mux.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/internal/capture"
	"github.com/tutorlane/liveclient/internal/models"
)

const (
	// RTP payload types declared in the SDP handed to ffmpeg; WriteRTP
	// rewrites incoming packets to match.
	payloadTypeVideo = 96
	payloadTypeAudio = 97
	// Hard cap on a single recording (2 hours).
	defaultMaxDurationSec = 7200
)

// ErrUnavailable means no capture tier produced a usable track or the
// runtime cannot record at all. Not fatal to the live session.
var ErrUnavailable = errors.New("recording unavailable")

// ErrAlreadyRecording means the session already has an active recording.
var ErrAlreadyRecording = errors.New("recording already active for this session")

type session struct {
	recording models.Recording
	stream    *capture.Stream
	local     *capture.Stream
	cmd       *exec.Cmd
	sdpPath   string
	videoConn *net.UDPConn
	audioConn *net.UDPConn
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// Service starts and stops per-session recordings.
type Service struct {
	composer  *capture.Composer
	probe     *capture.Probe
	devices   capture.Source // camera+mic; nil when no local devices
	outputDir string
	ffmpeg    string
	maxDurSec int
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewService creates the recording service.
func NewService(composer *capture.Composer, probe *capture.Probe, devices capture.Source, outputDir, ffmpegPath string, log *zap.Logger) *Service {
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		composer:  composer,
		probe:     probe,
		devices:   devices,
		outputDir: outputDir,
		ffmpeg:    ffmpegPath,
		maxDurSec: defaultMaxDurationSec,
		log:       log,
		sessions:  make(map[uuid.UUID]*session),
	}
}

// SetMaxDuration overrides the recording duration cap in seconds.
func (svc *Service) SetMaxDuration(sec int) { svc.maxDurSec = sec }

// buildSDP declares the composed tracks for ffmpeg with fixed payload types
// 96 (video) and 97 (audio), matching the pump's rewrite.
func buildSDP(tracks []*capture.Track, videoPort, audioPort int) string {
	s := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	for _, t := range tracks {
		port, pt, media := videoPort, payloadTypeVideo, "video"
		codec, clock := "VP8", "90000"
		if t.Kind == webrtc.RTPCodecTypeAudio {
			port, pt, media = audioPort, payloadTypeAudio, "audio"
			codec, clock = "opus", "48000/2"
		}
		switch t.MimeType {
		case webrtc.MimeTypeVP8:
			codec, clock = "VP8", "90000"
		case webrtc.MimeTypeVP9:
			codec, clock = "VP9", "90000"
		case webrtc.MimeTypeH264:
			codec, clock = "H264", "90000"
		case webrtc.MimeTypeOpus:
			codec, clock = "opus", "48000/2"
		case webrtc.MimeTypePCMU:
			codec, clock = "PCMU", "8000"
		}
		s += fmt.Sprintf("m=%s %d RTP/AVP %d\r\na=rtpmap:%d %s/%s\r\n", media, port, pt, pt, codec, clock)
	}
	return s
}

func freeUDPPort() int {
	l, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return 0
	}
	port := l.LocalAddr().(*net.UDPAddr).Port
	_ = l.Close()
	return port
}

// Start composes the capture stream and begins recording it. preferScreen
// puts the screen-share tier first in the source priority.
func (svc *Service) Start(ctx context.Context, sessionID uuid.UUID, preferScreen bool) (*models.Recording, error) {
	svc.mu.Lock()
	if _, busy := svc.sessions[sessionID]; busy {
		svc.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	svc.mu.Unlock()

	if !svc.probe.Supported() {
		return nil, ErrUnavailable
	}
	profile, ok := svc.probe.BestProfile()
	if !ok {
		return nil, ErrUnavailable
	}

	var local *capture.Stream
	if svc.devices != nil {
		acquired, err := svc.devices.Acquire(ctx)
		if err != nil {
			svc.log.Debug("local devices unavailable", zap.Error(err))
		} else {
			local = acquired
		}
	}

	stream := svc.composer.Compose(ctx, local, preferScreen)
	if stream == nil {
		if local != nil {
			local.Close()
		}
		return nil, ErrUnavailable
	}
	// When the composed stream borrowed nothing from the camera+mic stream
	// (screen video with system audio), the devices are released right away
	// instead of being held idle until Stop.
	local = releaseUnusedLocal(stream, local)

	rec, err := svc.startMux(stream, local, sessionID, profile)
	if err != nil {
		stream.Close()
		if local != nil {
			local.Close()
		}
		return nil, err
	}
	return rec, nil
}

func (svc *Service) startMux(stream, local *capture.Stream, sessionID uuid.UUID, profile capture.Profile) (*models.Recording, error) {
	videoPort := freeUDPPort()
	audioPort := freeUDPPort()
	if videoPort == 0 || audioPort == 0 {
		return nil, fmt.Errorf("no free loopback ports")
	}

	recordingID := uuid.New()
	dir := filepath.Join(svc.outputDir, "recordings")
	_ = os.MkdirAll(dir, 0750)
	outputPath := filepath.Join(dir, recordingID.String()+"."+profile.Container)
	sdpPath := filepath.Join(dir, recordingID.String()+".sdp")
	if err := os.WriteFile(sdpPath, []byte(buildSDP(stream.Tracks(), videoPort, audioPort)), 0600); err != nil {
		return nil, fmt.Errorf("write sdp: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-protocol_whitelist", "file,udp,rtp",
		"-f", "sdp", "-i", sdpPath,
	}
	// VP8/Opus into webm can be muxed without re-encoding; anything else
	// goes through the profile's encoders.
	if profile.Container == "webm" {
		args = append(args, "-c", "copy")
	} else {
		if profile.VideoCodec != "" {
			args = append(args, "-c:v", profile.FFmpegVideoEncoder())
		}
		if profile.AudioCodec != "" {
			args = append(args, "-c:a", profile.FFmpegAudioEncoder())
		}
	}
	args = append(args, "-t", fmt.Sprintf("%d", svc.maxDurSec), "-y", outputPath)

	cmd := exec.Command(svc.ffmpeg, args...)
	if err := cmd.Start(); err != nil {
		_ = os.Remove(sdpPath)
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	videoConn, err1 := dialLoopback(videoPort)
	audioConn, err2 := dialLoopback(audioPort)
	if err1 != nil || err2 != nil {
		_ = cmd.Process.Kill()
		closeConns(videoConn, audioConn)
		_ = os.Remove(sdpPath)
		return nil, fmt.Errorf("udp dial: %v / %v", err1, err2)
	}

	videoOrigin, audioOrigin := streamOrigins(stream)
	sess := &session{
		recording: models.Recording{
			ID:          recordingID,
			SessionID:   sessionID,
			Container:   profile.Container,
			VideoSource: videoOrigin,
			AudioSource: audioOrigin,
			OutputPath:  outputPath,
			Status:      models.RecordingStatusRecording,
			StartedAt:   time.Now(),
		},
		stream:    stream,
		local:     local,
		cmd:       cmd,
		sdpPath:   sdpPath,
		videoConn: videoConn,
		audioConn: audioConn,
	}

	for _, t := range stream.Tracks() {
		sess.wg.Add(1)
		go sess.pump(t)
	}

	svc.mu.Lock()
	svc.sessions[sessionID] = sess
	svc.mu.Unlock()

	svc.log.Info("recording started",
		zap.String("session_id", sessionID.String()),
		zap.String("recording_id", recordingID.String()),
		zap.String("video_source", videoOrigin),
		zap.String("output", outputPath),
	)
	rec := sess.recording
	return &rec, nil
}

// pump forwards one track's RTP into ffmpeg, rewriting the payload type to
// match the SDP. Exits when the track's capture pipeline stops.
func (s *session) pump(t *capture.Track) {
	defer s.wg.Done()
	pt := byte(payloadTypeVideo)
	conn := s.videoConn
	if t.Kind == webrtc.RTPCodecTypeAudio {
		pt = payloadTypeAudio
		conn = s.audioConn
	}
	for {
		pkt, err := t.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt) < 2 {
			continue
		}
		// Payload type lives in the lower 7 bits of the second byte.
		pkt[1] = (pkt[1] & 0x80) | pt
		s.mu.Lock()
		c := conn
		s.mu.Unlock()
		if c == nil {
			return
		}
		if _, err := c.Write(pkt); err != nil {
			return
		}
	}
}

// Stop ends the session's recording, releases every capture device and
// waits for ffmpeg to finalize the file.
func (svc *Service) Stop(sessionID uuid.UUID) (*models.Recording, error) {
	svc.mu.Lock()
	sess, ok := svc.sessions[sessionID]
	if !ok {
		svc.mu.Unlock()
		return nil, fmt.Errorf("no active recording for session %s", sessionID)
	}
	delete(svc.sessions, sessionID)
	svc.mu.Unlock()

	// Stopping the capture pipelines makes every pump exit.
	sess.stream.Close()
	if sess.local != nil {
		sess.local.Close()
	}
	sess.wg.Wait()

	sess.mu.Lock()
	closeConns(sess.videoConn, sess.audioConn)
	sess.videoConn, sess.audioConn = nil, nil
	cmd := sess.cmd
	sess.cmd = nil
	sess.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
		}
	}
	_ = os.Remove(sess.sdpPath)

	now := time.Now()
	sess.recording.Status = models.RecordingStatusStopped
	sess.recording.StoppedAt = &now
	svc.log.Info("recording stopped",
		zap.String("session_id", sessionID.String()),
		zap.String("output", sess.recording.OutputPath),
	)
	rec := sess.recording
	return &rec, nil
}

// Active reports whether the session has a recording in progress.
func (svc *Service) Active(sessionID uuid.UUID) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	_, ok := svc.sessions[sessionID]
	return ok
}

// releaseUnusedLocal closes the local device stream when the composed
// stream carries none of its tracks. Closing stops the whole device
// pipeline, so a partially used local stream (microphone borrowed, camera
// not) must be kept intact until Stop.
func releaseUnusedLocal(composed, local *capture.Stream) *capture.Stream {
	if local == nil {
		return nil
	}
	used := make(map[*capture.Track]bool, len(composed.Tracks()))
	for _, t := range composed.Tracks() {
		used[t] = true
	}
	for _, t := range local.Tracks() {
		if used[t] {
			return local
		}
	}
	local.Close()
	return nil
}

func streamOrigins(stream *capture.Stream) (video, audio string) {
	if vt := stream.VideoTracks(); len(vt) > 0 {
		video = string(vt[0].Origin)
	}
	if at := stream.AudioTracks(); len(at) > 0 {
		audio = string(at[0].Origin)
	}
	return video, audio
}

func dialLoopback(port int) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}
	return net.DialUDP("udp", nil, addr)
}

func closeConns(conns ...*net.UDPConn) {
	for _, c := range conns {
		if c != nil {
			_ = c.Close()
		}
	}
}
