package peer

import (
	"sync"
	"time"

	pion "github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/rostrumapp/rostrum/pkg/logger"
)

// Source supplies encoded media frames for the outgoing tracks.
type Source interface {
	// AudioFrame returns one encoded Opus frame and its duration.
	AudioFrame() ([]byte, time.Duration)
	// VideoFrame returns one encoded VP8 frame and its duration.
	VideoFrame() ([]byte, time.Duration)
}

// Media owns the local capture. The tracks are created once and
// shared between all sessions of the mesh, so every remote member
// receives the same stream.
type Media struct {
	src Source
	log *logger.Logger

	once  sync.Once
	audio *pion.TrackLocalStaticSample
	video *pion.TrackLocalStaticSample
	err   error
	stop  chan struct{}

	mu       sync.Mutex
	muted    bool
	videoOff bool
}

func NewMedia(src Source, log *logger.Logger) *Media {
	if src == nil {
		src = Static{}
	}
	return &Media{src: src, log: log, stop: make(chan struct{})}
}

// Capture allocates the audio and video tracks and starts pumping
// frames from the source. Repeated calls return the same tracks.
func (m *Media) Capture() ([]*pion.TrackLocalStaticSample, error) {
	m.once.Do(func() {
		m.audio, m.err = pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", "mic")
		if m.err != nil {
			return
		}
		m.video, m.err = pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "video", "camera")
		if m.err != nil {
			return
		}
		go m.pump(m.audio, m.src.AudioFrame, m.isMuted)
		go m.pump(m.video, m.src.VideoFrame, m.isVideoOff)
		m.log.Info().Msg("Capture started")
	})
	if m.err != nil {
		return nil, m.err
	}
	return []*pion.TrackLocalStaticSample{m.audio, m.video}, nil
}

// pump writes source frames into a track at the source's own pace.
// Toggled-off tracks keep the timing but skip the writes, so the
// stream resumes in sync.
func (m *Media) pump(track *pion.TrackLocalStaticSample, next func() ([]byte, time.Duration), off func() bool) {
	for {
		data, dur := next()
		select {
		case <-m.stop:
			return
		case <-time.After(dur):
		}
		if off() {
			continue
		}
		if err := track.WriteSample(media.Sample{Data: data, Duration: dur}); err != nil {
			m.log.Error().Err(err).Msg("sample write fail")
		}
	}
}

func (m *Media) Mute(v bool) {
	m.mu.Lock()
	m.muted = v
	m.mu.Unlock()
	m.log.Info().Msgf("Audio muted: %v", v)
}

func (m *Media) ToggleVideo(off bool) {
	m.mu.Lock()
	m.videoOff = off
	m.mu.Unlock()
	m.log.Info().Msgf("Video off: %v", off)
}

func (m *Media) isMuted() bool    { m.mu.Lock(); defer m.mu.Unlock(); return m.muted }
func (m *Media) isVideoOff() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.videoOff }

func (m *Media) Close() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

// Static is a stub capture source. It emits Opus silence and empty
// VP8 frames, which is enough to drive the negotiation and keep the
// RTP path alive without real devices.
type Static struct{}

// opusSilence is a canonical silent CELT frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func (Static) AudioFrame() ([]byte, time.Duration) { return opusSilence, 20 * time.Millisecond }
func (Static) VideoFrame() ([]byte, time.Duration) { return []byte{0}, 33 * time.Millisecond }
