package application

// FrameMixer combines the microphone and playback frames of one tick.
// It keeps an output buffer so a steady-state session does not allocate.
type FrameMixer struct {
	out []byte
}

// Merge returns the mixed frame. The result is only valid until the next call.
func (m *FrameMixer) Merge(mic, playback []byte) []byte {
	m.out = MergeFrames(m.out[:0], mic, playback)
	return m.out
}

// MergeFrames appends the additive mix of mic and playback to dst and returns
// the extended slice. Both inputs are little-endian int16 PCM. Samples are
// summed in int32 and clamped to the int16 range; an index past the end of
// the shorter frame counts as silence. A trailing odd byte is not a whole
// sample: at the end of the merged frame it is carried through from whichever
// frame holds it, but a dangling byte of the shorter frame falls inside a
// whole sample of the longer one and is dropped.
func MergeFrames(dst, mic, playback []byte) []byte {
	switch {
	case len(mic) == 0 && len(playback) == 0:
		return dst
	case len(playback) == 0:
		return append(dst, mic...)
	case len(mic) == 0:
		return append(dst, playback...)
	}

	n := max(len(mic), len(playback))
	start := len(dst)
	dst = append(dst, make([]byte, n)...)
	out := dst[start:]

	for i := 0; i+1 < n; i += 2 {
		sum := sampleAt(mic, i) + sampleAt(playback, i)

		// Clamp to int16 range.
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}

		out[i] = byte(sum)
		out[i+1] = byte(sum >> 8)
	}

	if n%2 == 1 {
		last := n - 1
		switch {
		case last < len(mic) && mic[last] != 0:
			out[last] = mic[last]
		case last < len(playback):
			out[last] = playback[last]
		}
	}
	return dst
}

func sampleAt(pcm []byte, i int) int32 {
	if i+1 >= len(pcm) {
		return 0
	}
	return int32(int16(pcm[i]) | int16(pcm[i+1])<<8)
}
