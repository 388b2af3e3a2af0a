package domain

import (
	"fmt"
	"time"
)

type Encoding string

const EncodingPCMSigned Encoding = "pcm_s16le"

type AudioFormat struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
	Encoding      Encoding
}

// DefaultAudioFormat is the format every session captures and writes:
// 44.1 kHz, 16-bit signed little-endian, mono.
func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate:    44100,
		BitsPerSample: 16,
		Channels:      1,
		Encoding:      EncodingPCMSigned,
	}
}

func (f AudioFormat) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.BitsPerSample != 16 || f.Encoding != EncodingPCMSigned {
		return fmt.Errorf("unsupported encoding %s/%d bits", f.Encoding, f.BitsPerSample)
	}
	if f.Channels != 1 {
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	return nil
}

// BytesPerFrame is the size of one sample across all channels.
func (f AudioFormat) BytesPerFrame() int {
	return f.BitsPerSample / 8 * f.Channels
}

// Duration returns how much audio n bytes of this format represent.
func (f AudioFormat) Duration(n int) time.Duration {
	bps := f.SampleRate * f.BytesPerFrame()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

func (f AudioFormat) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Encoding, f.SampleRate, f.Channels)
}

type SourceKind string

const (
	SourcePlayback   SourceKind = "playback"
	SourceMicrophone SourceKind = "microphone"
)

// AudioFrame is one read from a source. Frames live for a single tick.
type AudioFrame struct {
	Source SourceKind
	Seq    uint64
	Data   []byte
}

// Usage is a category of played-back audio that loopback capture may record.
type Usage string

const (
	UsageVoiceCommunication Usage = "voice_communication"
	UsageMedia              Usage = "media"
)

func DefaultUsages() []Usage {
	return []Usage{UsageVoiceCommunication, UsageMedia}
}

// ArtifactName is the deterministic output name for a session created at t.
func ArtifactName(t time.Time) string {
	return fmt.Sprintf("call_recording_%d.pcm", t.UnixMilli())
}
