// Package codec converts between G.711 μ-law and 16-bit linear PCM and
// resamples PCM between telephony and synthesizer rates.
package codec

const (
	mulawBias = 0x84
	mulawClip = 32635

	// Silence is the μ-law byte that decodes to zero amplitude.
	Silence byte = 0xFF
)

// EncodeSample compands one linear sample to μ-law.
func EncodeSample(s int16) byte {
	v := int(s)
	sign := 0
	if v < 0 {
		sign = 0x80
		v = -v
	}
	if v > mulawClip {
		v = mulawClip
	}
	v += mulawBias

	exp := 7
	for mask := 0x4000; v&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := (v >> (exp + 3)) & 0x0F
	return ^byte(sign | exp<<4 | mant)
}

// DecodeSample expands one μ-law byte to a linear sample.
func DecodeSample(b byte) int16 {
	u := ^b
	exp := int(u>>4) & 0x07
	mant := int(u & 0x0F)
	mag := (((mant << 3) + mulawBias) << exp) - mulawBias
	if u&0x80 != 0 {
		return int16(-mag)
	}
	return int16(mag)
}

// StepSize returns the quantization step of the segment that b belongs to.
func StepSize(b byte) int {
	exp := int(^b>>4) & 0x07
	return 1 << (exp + 3)
}

// Decode expands a μ-law buffer to linear samples.
func Decode(mulaw []byte) []int16 {
	out := make([]int16, len(mulaw))
	for i, b := range mulaw {
		out[i] = DecodeSample(b)
	}
	return out
}

// Encode compands linear samples to a μ-law buffer.
func Encode(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = EncodeSample(s)
	}
	return out
}
