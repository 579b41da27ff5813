package codec

import (
	"encoding/binary"
	"fmt"
)

// Encodings understood by ToTelephony.
const (
	EncodingMulaw    = "mulaw"
	EncodingLinear16 = "linear16"

	TelephonyRate = 8000
)

// Resample converts samples from inRate to outRate by nearest-neighbour
// selection. The output holds floor(len*outRate/inRate) samples.
func Resample(samples []int16, inRate, outRate int) []int16 {
	if inRate <= 0 || outRate <= 0 {
		return nil
	}
	if inRate == outRate {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples)
	outLen := int(int64(n) * int64(outRate) / int64(inRate))
	out := make([]int16, outLen)
	for i := range out {
		out[i] = samples[int64(i)*int64(n)/int64(outLen)]
	}
	return out
}

// PCM16FromBytes reads little-endian 16-bit samples. A trailing odd byte is ignored.
func PCM16FromBytes(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// PCM16ToBytes writes samples as little-endian 16-bit PCM.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// ToTelephony converts synthesizer output to 8 kHz μ-law. μ-law at 8 kHz is
// returned unchanged; linear PCM at any rate is resampled then companded.
func ToTelephony(data []byte, encoding string, sampleRate int) ([]byte, error) {
	switch encoding {
	case EncodingMulaw:
		if sampleRate != TelephonyRate {
			return Encode(Resample(Decode(data), sampleRate, TelephonyRate)), nil
		}
		return data, nil
	case EncodingLinear16:
		pcm := PCM16FromBytes(data)
		return Encode(Resample(pcm, sampleRate, TelephonyRate)), nil
	default:
		return nil, fmt.Errorf("codec: unsupported encoding %q", encoding)
	}
}
