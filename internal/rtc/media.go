package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// SampleMedia carries one video and one audio track that the kiosk's
// capture pipeline feeds encoded samples into. The capture pipeline
// itself is an external collaborator; this is only the attachment point.
type SampleMedia struct {
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample

	mu     sync.Mutex
	closed bool
}

// SampleMediaSource builds SampleMedia per session.
type SampleMediaSource struct{}

func NewSampleMediaSource() *SampleMediaSource {
	return &SampleMediaSource{}
}

func (s *SampleMediaSource) Acquire(ctx context.Context) (LocalMedia, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, "video", "kiosk")
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "kiosk")
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	return &SampleMedia{video: video, audio: audio}, nil
}

func (m *SampleMedia) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{m.video, m.audio}
}

// WriteVideo pushes one encoded video sample from the capture pipeline.
func (m *SampleMedia) WriteVideo(sample media.Sample) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return fmt.Errorf("media released")
	}
	return m.video.WriteSample(sample)
}

// WriteAudio pushes one encoded audio sample from the capture pipeline.
func (m *SampleMedia) WriteAudio(sample media.Sample) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return fmt.Errorf("media released")
	}
	return m.audio.WriteSample(sample)
}

// Close releases the tracks. Sample writes after Close fail, which is the
// capture pipeline's cue to stop the hardware.
func (m *SampleMedia) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
