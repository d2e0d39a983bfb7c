package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ErrNoPipeline means a track has no capture backend attached.
var ErrNoPipeline = errors.New("capture: track has no pipeline")

const (
	rtpBufferSize   = 1500
	firstPacketWait = 3 * time.Second
)

// rtpLeg is one RTP receive port a capture ffmpeg process sends into.
type rtpLeg struct {
	kind webrtc.RTPCodecType
	mime string
	conn *net.UDPConn
}

func listenRTP() (*net.UDPConn, int, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return nil, 0, fmt.Errorf("listen rtp: %w", err)
	}
	return conn, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

// udpRTPReader reads packets from a loopback RTP leg. first holds the
// packet consumed while waiting for the pipeline to produce output.
type udpRTPReader struct {
	conn  *net.UDPConn
	mu    sync.Mutex
	first []byte
}

func (r *udpRTPReader) ReadRTP() ([]byte, error) {
	r.mu.Lock()
	if r.first != nil {
		pkt := r.first
		r.first = nil
		r.mu.Unlock()
		return pkt, nil
	}
	r.mu.Unlock()
	buf := make([]byte, rtpBufferSize)
	n, _, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// startRTPPipeline spawns an ffmpeg capture process that encodes into the
// given RTP legs and returns a stream of tracks reading from them. The
// pipeline is considered dead until the primary leg produces a packet.
func startRTPPipeline(ffmpegPath string, args []string, stdin io.Reader, legs []rtpLeg, origin SourceTag, log *zap.Logger) (*Stream, error) {
	cmd := exec.Command(ffmpegPath, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if err := cmd.Start(); err != nil {
		closeLegs(legs)
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	stop := pipelineStopper(cmd, legs)

	// The capture can fail after Start (missing display, busy device). Wait
	// for the first packet on the primary leg before declaring the tier
	// usable.
	first, err := awaitFirstPacket(legs[0].conn)
	if err != nil {
		stop()
		return nil, fmt.Errorf("%s capture produced no media: %w", origin, err)
	}

	tracks := make([]*Track, 0, len(legs))
	for i, leg := range legs {
		reader := &udpRTPReader{conn: leg.conn}
		if i == 0 {
			reader.first = first
		}
		tracks = append(tracks, NewTrack(leg.kind, leg.mime, origin, reader, stop))
	}
	log.Debug("capture pipeline started", zap.String("origin", string(origin)), zap.Int("tracks", len(tracks)))
	return NewStream(tracks...), nil
}

func pipelineStopper(cmd *exec.Cmd, legs []rtpLeg) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
			}
			closeLegs(legs)
		})
	}
}

func closeLegs(legs []rtpLeg) {
	for _, leg := range legs {
		if leg.conn != nil {
			_ = leg.conn.Close()
		}
	}
}

func awaitFirstPacket(conn *net.UDPConn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(firstPacketWait)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})
	buf := make([]byte, rtpBufferSize)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
