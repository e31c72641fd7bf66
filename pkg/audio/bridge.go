package audio

import "fmt"

// MediaToModel transcodes one telephony frame (µ-law, 8 kHz mono) into a
// model frame (linear 16-bit little-endian PCM, 16 kHz mono).
//
// Upsampling is 2× linear interpolation: each even output sample equals the
// corresponding input sample, each odd output sample is the integer mean of
// the surrounding input pair. The final sample is held rather than
// extrapolated, so no synthetic tail is produced.
func MediaToModel(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("media to model: empty frame: %w", ErrInvalidFrame)
	}

	decoded := make([]int16, len(frame))
	for i, b := range frame {
		decoded[i] = DecodeMuLaw(b)
	}

	out := make([]byte, len(decoded)*2*2)
	for i, s := range decoded {
		next := s
		if i+1 < len(decoded) {
			next = decoded[i+1]
		}
		mid := int16((int32(s) + int32(next)) / 2)

		j := i * 4
		out[j] = byte(s)
		out[j+1] = byte(uint16(s) >> 8)
		out[j+2] = byte(mid)
		out[j+3] = byte(uint16(mid) >> 8)
	}
	return out, nil
}

// ModelToMedia transcodes one model frame (linear 16-bit little-endian PCM,
// 24 kHz mono) into a telephony frame (µ-law, 8 kHz mono).
//
// Downsampling is 3:1 decimation preceded by a uniform 3-tap box filter: each
// output sample is the integer mean of one non-overlapping window of three
// input samples. A trailing partial window is averaged over the samples it
// actually contains.
func ModelToMedia(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("model to media: empty frame: %w", ErrInvalidFrame)
	}
	if len(frame)%2 != 0 {
		return nil, fmt.Errorf("model to media: odd PCM byte count %d: %w", len(frame), ErrInvalidFrame)
	}

	samples := len(frame) / 2
	outSamples := (samples + 2) / 3
	out := make([]byte, outSamples)

	for i := range outSamples {
		var sum, n int32
		for k := i * 3; k < i*3+3 && k < samples; k++ {
			s := int16(uint16(frame[k*2]) | uint16(frame[k*2+1])<<8)
			sum += int32(s)
			n++
		}
		out[i] = EncodeMuLaw(int16(sum / n))
	}
	return out, nil
}
