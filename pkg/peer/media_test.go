package peer

import (
	"testing"

	pion "github.com/pion/webrtc/v3"

	"github.com/rostrumapp/rostrum/pkg/logger"
)

func TestMediaCapture(t *testing.T) {
	m := NewMedia(nil, logger.Default())
	defer m.Close()

	tracks, err := m.Capture()
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Fatalf("tracks = %v, want audio and video", len(tracks))
	}
	if tracks[0].Codec().MimeType != pion.MimeTypeOpus {
		t.Errorf("audio mime = %v", tracks[0].Codec().MimeType)
	}
	if tracks[1].Codec().MimeType != pion.MimeTypeVP8 {
		t.Errorf("video mime = %v", tracks[1].Codec().MimeType)
	}

	// the capture is shared, repeated calls return the same tracks
	again, err := m.Capture()
	if err != nil {
		t.Fatal(err)
	}
	for i := range tracks {
		if tracks[i] != again[i] {
			t.Errorf("tracks[%v] was recreated", i)
		}
	}
}

func TestMediaToggles(t *testing.T) {
	m := NewMedia(Static{}, logger.Default())
	defer m.Close()

	if m.isMuted() || m.isVideoOff() {
		t.Error("fresh media is toggled off")
	}
	m.Mute(true)
	m.ToggleVideo(true)
	if !m.isMuted() || !m.isVideoOff() {
		t.Error("toggles did not apply")
	}
	m.Mute(false)
	if m.isMuted() {
		t.Error("unmute did not apply")
	}
}

func TestStaticSource(t *testing.T) {
	var src Static
	audio, d := src.AudioFrame()
	if len(audio) == 0 || d <= 0 {
		t.Error("empty audio frame")
	}
	video, d := src.VideoFrame()
	if len(video) == 0 || d <= 0 {
		t.Error("empty video frame")
	}
}
