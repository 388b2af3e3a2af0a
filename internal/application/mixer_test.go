package application_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"callrec/internal/application"
)

func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestMergeFrames(t *testing.T) {
	tests := []struct {
		name     string
		mic      []int16
		playback []int16
		want     []int16
	}{
		{
			name:     "sums overlapping samples",
			mic:      []int16{100, -200, 300},
			playback: []int16{10, 20, -30},
			want:     []int16{110, -180, 270},
		},
		{
			name:     "shorter playback counts as silence",
			mic:      []int16{1, 2, 3, 4},
			playback: []int16{10, 10},
			want:     []int16{11, 12, 3, 4},
		},
		{
			name:     "shorter mic counts as silence",
			mic:      []int16{5},
			playback: []int16{1, 2, 3},
			want:     []int16{6, 2, 3},
		},
		{
			name:     "clips positive overflow",
			mic:      []int16{30000, 32767},
			playback: []int16{10000, 1},
			want:     []int16{32767, 32767},
		},
		{
			name:     "clips negative overflow",
			mic:      []int16{-30000, -32768},
			playback: []int16{-10000, -1},
			want:     []int16{-32768, -32768},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytesToSamples(application.MergeFrames(nil, samplesToBytes(tt.mic), samplesToBytes(tt.playback)))
			if len(got) != len(tt.want) {
				t.Fatalf("length mismatch: got %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMergeFrames_EmptyInputs(t *testing.T) {
	if got := application.MergeFrames(nil, nil, nil); len(got) != 0 {
		t.Errorf("both empty: got %d bytes, want 0", len(got))
	}

	odd := []byte{1, 2, 3}
	if got := application.MergeFrames(nil, odd, nil); !bytes.Equal(got, odd) {
		t.Errorf("mic only: got %v, want %v", got, odd)
	}
	if got := application.MergeFrames(nil, nil, odd); !bytes.Equal(got, odd) {
		t.Errorf("playback only: got %v, want %v", got, odd)
	}
}

func TestMergeFrames_SilentCounterpartIsIdentity(t *testing.T) {
	frames := [][]byte{
		samplesToBytes([]int16{0, 1, -1, 32767, -32768, 1234}),
		{0x10, 0x20, 0x30},
		{0xff},
	}
	for _, a := range frames {
		silence := make([]byte, len(a))
		if got := application.MergeFrames(nil, a, silence); !bytes.Equal(got, a) {
			t.Errorf("merge(%v, silence): got %v", a, got)
		}
	}
}

func TestFrameMixer_ReusesBuffer(t *testing.T) {
	var m application.FrameMixer
	first := m.Merge(samplesToBytes([]int16{1, 2}), samplesToBytes([]int16{1}))
	if want := []int16{2, 2}; !equalSamples(bytesToSamples(first), want) {
		t.Fatalf("first merge: got %v, want %v", bytesToSamples(first), want)
	}

	second := m.Merge(samplesToBytes([]int16{7}), nil)
	if want := []int16{7}; !equalSamples(bytesToSamples(second), want) {
		t.Errorf("second merge: got %v, want %v", bytesToSamples(second), want)
	}
}

func equalSamples(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMergeFrames_DanglingByteOfShorterFrame(t *testing.T) {
	// mic has one sample plus a dangling byte; playback has two whole samples.
	mic := []byte{0x01, 0x00, 0x7f}
	playback := samplesToBytes([]int16{2, 300})

	got := application.MergeFrames(nil, mic, playback)
	want := samplesToBytes([]int16{3, 300})
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// Same layout with the roles swapped.
	got = application.MergeFrames(nil, playback, mic)
	if !bytes.Equal(got, want) {
		t.Errorf("swapped: got %v, want %v", got, want)
	}
}

func TestMergeFrames_DanglingByteAtEndIsCarried(t *testing.T) {
	mic := []byte{0x01, 0x00, 0x00}
	playback := []byte{0x02, 0x00, 0x42}

	got := application.MergeFrames(nil, mic, playback)
	want := []byte{0x03, 0x00, 0x42}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
