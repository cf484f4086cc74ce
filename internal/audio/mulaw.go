// Package audio converts between the 8-bit mu-law telephony encoding and
// 16-bit linear PCM. All frame-level helpers fail closed: malformed input is
// returned unchanged so a corrupt audio chunk never takes down a call.
package audio

import "encoding/base64"

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// DecodeSample expands one mu-law byte to a 16-bit linear sample per the
// G.711 bit layout (inverted sign + 3-bit exponent + 4-bit mantissa).
func DecodeSample(u byte) int16 {
	u = ^u
	t := (int32(u&0x0F) << 3) + mulawBias
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return int16(mulawBias - t)
	}
	return int16(t - mulawBias)
}

// EncodeSample compresses a 16-bit linear sample to one mu-law byte,
// clamping to the codec's range.
func EncodeSample(s int16) byte {
	pcm := int32(s)
	mask := byte(0xFF)
	if pcm < 0 {
		pcm = -pcm
		mask = 0x7F
	}
	if pcm > mulawClip {
		pcm = mulawClip
	}
	pcm += mulawBias

	exponent := 7
	for m := int32(0x4000); exponent > 0 && pcm&m == 0; m >>= 1 {
		exponent--
	}

	mantissa := byte((pcm >> uint(exponent+3)) & 0x0F)
	return (byte(exponent<<4) | mantissa) ^ mask
}

// Upsample repeats each sample factor times (zero-order hold)
func Upsample(samples []int16, factor int) []int16 {
	if factor <= 1 {
		return samples
	}
	out := make([]int16, 0, len(samples)*factor)
	for _, s := range samples {
		for i := 0; i < factor; i++ {
			out = append(out, s)
		}
	}
	return out
}

// Downsample keeps every factor-th sample. Plain decimation, no anti-alias
// filtering; the source is narrowband anyway.
func Downsample(samples []int16, factor int) []int16 {
	if factor <= 1 {
		return samples
	}
	out := make([]int16, 0, len(samples)/factor+1)
	for i := 0; i < len(samples); i += factor {
		out = append(out, samples[i])
	}
	return out
}

// MulawToPCM16 decodes a base64 mu-law frame into base64 little-endian PCM16,
// upsampled by upsampleFactor. On malformed input the original payload is
// returned unchanged.
func MulawToPCM16(payload string, upsampleFactor int) string {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return payload
	}

	samples := make([]int16, len(raw))
	for i, b := range raw {
		samples[i] = DecodeSample(b)
	}
	samples = Upsample(samples, upsampleFactor)

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return base64.StdEncoding.EncodeToString(out)
}

// PCM16ToMulaw encodes a base64 little-endian PCM16 frame into base64 mu-law,
// decimated by downsampleFactor. On malformed input (bad base64 or an odd
// byte count) the original payload is returned unchanged.
func PCM16ToMulaw(payload string, downsampleFactor int) string {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(raw)%2 != 0 {
		return payload
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	samples = Downsample(samples, downsampleFactor)

	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = EncodeSample(s)
	}
	return base64.StdEncoding.EncodeToString(out)
}
