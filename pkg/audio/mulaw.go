// Package audio provides the stateless transcoding bridge between the two
// audio legs of a call: narrowband G.711 µ-law telephony frames on one side
// and wideband linear 16-bit PCM model frames on the other.
//
// All functions are pure and allocate their output; both legs call into this
// package directly from their own loops without shared buffers.
package audio

import "errors"

// ErrInvalidFrame is returned when a frame cannot be transcoded: the byte
// string is empty, or a PCM input's length is not a multiple of two.
var ErrInvalidFrame = errors.New("audio: invalid frame")

// µ-law companding constants per ITU-T G.711.
const (
	muLawBias = 0x84 // 33 << 2
	muLawClip = 0x7FFF
)

// DecodeMuLaw expands a single µ-law code into a linear 16-bit sample.
func DecodeMuLaw(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := (int32(mantissa)<<3 + muLawBias) << exponent
	sample -= muLawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// EncodeMuLaw compresses a linear 16-bit sample into a µ-law code.
// math.MinInt16 is treated as math.MaxInt16 before magnitude negation and
// the biased magnitude is clamped at 15 bits, so no input can overflow.
func EncodeMuLaw(s int16) byte {
	var sign byte
	sample := int32(s)
	if sample < 0 {
		if sample == -32768 {
			sample = 32767
		}
		sample = -sample
		sign = 0x80
	}

	sample += muLawBias
	if sample > muLawClip {
		sample = muLawClip
	}

	exponent := 7
	for mask := int32(0x4000); exponent > 0 && sample&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((sample >> (exponent + 3)) & 0x0F)

	return ^(sign | byte(exponent)<<4 | mantissa)
}
