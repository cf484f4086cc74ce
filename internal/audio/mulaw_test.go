package audio

import (
	"encoding/base64"
	"testing"
)

func TestDecodeSampleReferenceVectors(t *testing.T) {
	tests := []struct {
		encoded byte
		want    int16
	}{
		{0xFF, 0},      // positive zero
		{0x7F, 0},      // negative zero
		{0x80, 32124},  // most positive
		{0x00, -32124}, // most negative
	}

	for _, tt := range tests {
		if got := DecodeSample(tt.encoded); got != tt.want {
			t.Errorf("DecodeSample(0x%02X) = %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestEncodeSampleReferenceVectors(t *testing.T) {
	if got := EncodeSample(0); got != 0xFF {
		t.Errorf("EncodeSample(0) = 0x%02X, want 0xFF", got)
	}
	if got := EncodeSample(32767); got != 0x80 {
		t.Errorf("EncodeSample(32767) = 0x%02X, want 0x80", got)
	}
	if got := EncodeSample(-32768); got != 0x00 {
		t.Errorf("EncodeSample(-32768) = 0x%02X, want 0x00", got)
	}
}

// Decoding and re-encoding any mu-law byte must land on a byte representing
// the same linear value. Byte-identical except negative zero, which encodes
// back to positive zero.
func TestMulawRoundTripAllBytes(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		linear := DecodeSample(b)
		back := EncodeSample(linear)

		if back != b {
			if DecodeSample(back) != linear {
				t.Errorf("round trip 0x%02X -> %d -> 0x%02X decodes to %d",
					b, linear, back, DecodeSample(back))
			}
		}
	}
}

func TestEncodeSampleClamps(t *testing.T) {
	// Values beyond the clip range must map to the extremes, not wrap
	if got := EncodeSample(32767); got != EncodeSample(mulawClip) {
		t.Errorf("expected clipped encoding, got 0x%02X", got)
	}
	if got := EncodeSample(-32768); got != EncodeSample(-mulawClip) {
		t.Errorf("expected clipped encoding, got 0x%02X", got)
	}
}

func TestUpsampleZeroOrderHold(t *testing.T) {
	in := []int16{1, -2, 3}
	got := Upsample(in, 2)
	want := []int16{1, 1, -2, -2, 3, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownsampleDecimates(t *testing.T) {
	in := []int16{1, 2, 3, 4, 5, 6, 7}
	got := Downsample(in, 3)
	want := []int16{1, 4, 7}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestUpsampleFactorOneIsIdentity(t *testing.T) {
	in := []int16{5, 6}
	if got := Upsample(in, 1); len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Errorf("Upsample factor 1 changed input: %v", got)
	}
	if got := Downsample(in, 1); len(got) != 2 {
		t.Errorf("Downsample factor 1 changed input: %v", got)
	}
}

func TestMulawToPCM16MalformedPassthrough(t *testing.T) {
	malformed := "not!!valid@@base64"
	if got := MulawToPCM16(malformed, 2); got != malformed {
		t.Errorf("expected malformed input passed through, got %q", got)
	}
}

func TestPCM16ToMulawMalformedPassthrough(t *testing.T) {
	malformed := "%%%"
	if got := PCM16ToMulaw(malformed, 2); got != malformed {
		t.Errorf("expected malformed input passed through, got %q", got)
	}

	// Odd byte count is not valid PCM16
	odd := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	if got := PCM16ToMulaw(odd, 2); got != odd {
		t.Errorf("expected odd-length input passed through, got %q", got)
	}
}

func TestMulawToPCM16Converts(t *testing.T) {
	// One mu-law silence byte upsampled x2 becomes two zero PCM16 samples
	in := base64.StdEncoding.EncodeToString([]byte{0xFF})
	got := MulawToPCM16(in, 2)

	raw, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}
	if len(raw) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(raw))
	}
	for i, b := range raw {
		if b != 0 {
			t.Errorf("byte %d: expected 0, got 0x%02X", i, b)
		}
	}
}

func TestPCM16ToMulawConverts(t *testing.T) {
	// Two zero samples decimated x2 become one mu-law positive zero
	in := base64.StdEncoding.EncodeToString([]byte{0, 0, 0, 0})
	got := PCM16ToMulaw(in, 2)

	raw, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}
	if len(raw) != 1 || raw[0] != 0xFF {
		t.Errorf("expected single 0xFF byte, got %v", raw)
	}
}
