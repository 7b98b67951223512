package audio

import (
	"errors"
	"math"
	"testing"

	"github.com/zaf/g711"
)

// sineCarrier builds n samples of a 400 Hz tone at 8 kHz and returns it
// mu-law encoded.
func sineCarrier(n int, amplitude float64) []byte {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(amplitude * math.Sin(2*math.Pi*400*float64(i)/float64(CarrierRate)))
	}
	return g711.EncodeUlaw(samplesToBytes(pcm))
}

func TestToWideband_EmptyFrame(t *testing.T) {
	out, err := ToWideband(nil, RateWideband16k)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(out))
	}
}

func TestToWideband_UnsupportedRate(t *testing.T) {
	_, err := ToWideband(sineCarrier(160, 8000), 44100)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestToWideband_FrameDuration(t *testing.T) {
	// 160 carrier bytes is 20 ms at 8 kHz.
	carrier := sineCarrier(160, 8000)

	tests := []struct {
		rate      int
		wantBytes int
	}{
		{8000, 320},   // 160 samples, 2 bytes each
		{16000, 640},  // 320 samples
		{24000, 960},  // 480 samples
	}
	for _, tt := range tests {
		out, err := ToWideband(carrier, tt.rate)
		if err != nil {
			t.Fatalf("rate %d: unexpected error: %v", tt.rate, err)
		}
		if len(out) != tt.wantBytes {
			t.Errorf("rate %d: expected %d bytes, got %d", tt.rate, tt.wantBytes, len(out))
		}
	}
}

func TestToCarrier_OddByteCount(t *testing.T) {
	_, err := ToCarrier([]byte{0x01, 0x02, 0x03}, RateWideband16k)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for odd PCM length, got %v", err)
	}
}

func TestRoundTrip_16k(t *testing.T) {
	carrier := sineCarrier(160, 12000)

	wide, err := ToWideband(carrier, RateWideband16k)
	if err != nil {
		t.Fatalf("ToWideband: %v", err)
	}
	back, err := ToCarrier(wide, RateWideband16k)
	if err != nil {
		t.Fatalf("ToCarrier: %v", err)
	}

	if len(back) != len(carrier) {
		t.Fatalf("frame duration changed: %d bytes in, %d out", len(carrier), len(back))
	}

	// Integer-factor upsampling keeps every original sample in place, so
	// the only loss allowed is the mu-law quantizer's own step size.
	orig := bytesToSamples(g711.DecodeUlaw(carrier))
	got := bytesToSamples(g711.DecodeUlaw(back))
	for i := range orig {
		diff := int(orig[i]) - int(got[i])
		if diff < -256 || diff > 256 {
			t.Fatalf("sample %d: quantization error too large: %d vs %d", i, orig[i], got[i])
		}
	}
}

func TestResample_RoundTripExact(t *testing.T) {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = int16(math.Round(10000 * math.Sin(float64(i)/7)))
	}

	up := Resample(samples, 8000, 16000)
	if len(up) != 320 {
		t.Fatalf("expected 320 upsampled samples, got %d", len(up))
	}
	down := Resample(up, 16000, 8000)
	if len(down) != 160 {
		t.Fatalf("expected 160 downsampled samples, got %d", len(down))
	}
	for i := range samples {
		if down[i] != samples[i] {
			t.Fatalf("sample %d changed through 8k->16k->8k: %d vs %d", i, samples[i], down[i])
		}
	}
}

func TestResample_SameRate(t *testing.T) {
	samples := []int16{1, 2, 3}
	out := Resample(samples, 8000, 8000)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Errorf("same-rate resample should be a copy, got %v", out)
	}
}

func TestAdjustGain_Identity(t *testing.T) {
	frame := samplesToBytes([]int16{100, -200, 300})
	out, err := AdjustGain(frame, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := bytesToSamples(out)
	if got[0] != 100 || got[1] != -200 || got[2] != 300 {
		t.Errorf("identity gain changed samples: %v", got)
	}
}

func TestAdjustGain_ClipsNotWraps(t *testing.T) {
	frame := samplesToBytes([]int16{30000, -30000})
	out, err := AdjustGain(frame, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := bytesToSamples(out)
	if got[0] != math.MaxInt16 {
		t.Errorf("expected positive clip to %d, got %d", math.MaxInt16, got[0])
	}
	if got[1] != math.MinInt16 {
		t.Errorf("expected negative clip to %d, got %d", math.MinInt16, got[1])
	}
}

func TestAdjustGain_RejectsNonPositiveFactor(t *testing.T) {
	if _, err := AdjustGain(samplesToBytes([]int16{1}), 0); err == nil {
		t.Error("expected error for zero gain factor")
	}
	if _, err := AdjustGain(samplesToBytes([]int16{1}), -1); err == nil {
		t.Error("expected error for negative gain factor")
	}
}

func TestIsSilence(t *testing.T) {
	quiet := samplesToBytes(make([]int16, 160))
	if !IsSilence(quiet, 500) {
		t.Error("all-zero frame should be silent")
	}

	loud, err := ToWideband(sineCarrier(160, 12000), CarrierRate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if IsSilence(loud, 500) {
		t.Error("12000-amplitude sine should not be silent")
	}

	if !IsSilence(nil, 500) {
		t.Error("empty frame should be silent")
	}
}

func TestSilenceFrame_DecodesToSilence(t *testing.T) {
	frame := SilenceFrame(160)
	wide, err := ToWideband(frame, RateWideband16k)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsSilence(wide, 10) {
		t.Errorf("silence frame decoded to RMS %f", RMS(wide))
	}
}
