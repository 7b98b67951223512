// Package audio converts between the telephony carrier format (8 kHz G.711
// mu-law) and the wide-band 16-bit linear PCM consumed by the analysis
// provider. All conversions are one-shot per frame: frames are short enough
// that a stateless linear resampler introduces no audible artifacts, and
// keeping no cross-frame filter state means a dropped frame never corrupts
// its successors.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/zaf/g711"
)

// CarrierRate is the fixed sample rate of the telephony carrier.
const CarrierRate = 8000

// Supported wide-band rates for the analysis provider.
const (
	RateWideband16k = 16000
	RateWideband24k = 24000
)

// ErrDecode reports a frame that could not be transcoded. Callers on the
// media path substitute silence of equal nominal duration so stream timing
// stays intact.
var ErrDecode = errors.New("audio: undecodable frame")

// ToWideband decodes an 8 kHz mu-law carrier frame to 16-bit linear PCM and
// resamples it to targetRate. An empty frame yields an empty frame.
func ToWideband(carrierFrame []byte, targetRate int) ([]byte, error) {
	switch targetRate {
	case CarrierRate, RateWideband16k, RateWideband24k:
	default:
		return nil, fmt.Errorf("%w: unsupported target rate %d", ErrDecode, targetRate)
	}
	if len(carrierFrame) == 0 {
		return []byte{}, nil
	}

	samples := bytesToSamples(g711.DecodeUlaw(carrierFrame))
	if targetRate != CarrierRate {
		samples = Resample(samples, CarrierRate, targetRate)
	}
	return samplesToBytes(samples), nil
}

// ToCarrier resamples a wide-band 16-bit linear PCM frame down to 8 kHz and
// encodes it as mu-law. Output is always 8 kHz carrier format.
func ToCarrier(widebandFrame []byte, sourceRate int) ([]byte, error) {
	switch sourceRate {
	case CarrierRate, RateWideband16k, RateWideband24k:
	default:
		return nil, fmt.Errorf("%w: unsupported source rate %d", ErrDecode, sourceRate)
	}
	if len(widebandFrame) == 0 {
		return []byte{}, nil
	}
	if len(widebandFrame)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM byte count %d", ErrDecode, len(widebandFrame))
	}

	samples := bytesToSamples(widebandFrame)
	if sourceRate != CarrierRate {
		samples = Resample(samples, sourceRate, CarrierRate)
	}
	return g711.EncodeUlaw(samplesToBytes(samples)), nil
}

// AdjustGain scales a 16-bit PCM frame by factor, clipping at the int16
// range rather than wrapping. Factor 1.0 is the identity.
func AdjustGain(frame []byte, factor float64) ([]byte, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("audio: gain factor must be positive, got %v", factor)
	}
	if len(frame)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM byte count %d", ErrDecode, len(frame))
	}
	if factor == 1.0 {
		out := make([]byte, len(frame))
		copy(out, frame)
		return out, nil
	}

	samples := bytesToSamples(frame)
	for i, s := range samples {
		samples[i] = clip(float64(s) * factor)
	}
	return samplesToBytes(samples), nil
}

// IsSilence reports whether the RMS energy of a 16-bit PCM frame is below
// threshold. An empty frame is silent.
func IsSilence(frame []byte, threshold float64) bool {
	return RMS(frame) < threshold
}

// RMS computes the root-mean-square amplitude of a 16-bit PCM frame.
func RMS(frame []byte) float64 {
	samples := bytesToSamples(frame)
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// SilenceFrame returns a carrier frame of n mu-law silence bytes, used to
// substitute for an undecodable frame without disturbing stream timing.
func SilenceFrame(n int) []byte {
	frame := make([]byte, n)
	for i := range frame {
		frame[i] = 0xFF // mu-law encoding of linear zero
	}
	return frame
}

// Resample converts samples from one rate to another by linear
// interpolation. Upsampling by an integer factor keeps every source sample
// in place, so Resample(Resample(x, 8000, 16000), 16000, 8000) == x.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(math.Round(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(math.Round(a + (b-a)*frac))
	}
	return out
}

func clip(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}
