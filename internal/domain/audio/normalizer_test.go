package audio

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechbridge-server-go/internal/platform/errors"
)

// sineWAV builds a 16-bit PCM WAV of a sine tone for tests.
func sineWAV(t *testing.T, freq float64, seconds float64, rate, channels int) []byte {
	t.Helper()
	frames := int(seconds * float64(rate))
	samples := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	if channels == 1 {
		return encodeWAV(samples, rate)
	}
	// encodeWAV is mono only; build a stereo container by hand via the
	// mono encoder header plus rewritten fmt fields is fragile, so
	// interleave through decode-ready buffer instead.
	return encodeStereoWAV(samples, rate, channels)
}

func encodeStereoWAV(samples []float32, rate, channels int) []byte {
	mono := encodeWAV(samples, rate)
	// Patch channel count, byte rate and block align in the fmt chunk.
	out := append([]byte(nil), mono...)
	out[22] = byte(channels)
	byteRate := rate * channels * 2
	out[28] = byte(byteRate)
	out[29] = byte(byteRate >> 8)
	out[30] = byte(byteRate >> 16)
	out[31] = byte(byteRate >> 24)
	blockAlign := channels * 2
	out[32] = byte(blockAlign)
	out[33] = byte(blockAlign >> 8)
	return out
}

func TestNormalizeProducesMonoTargetRate(t *testing.T) {
	norm := NewNormalizer(Options{TargetSampleRate: 16000, PeakLevel: 0.8})

	wav := sineWAV(t, 440, 1.0, 44100, 2)
	got, err := norm.Normalize(Blob{Data: wav, Format: "wav"})
	require.NoError(t, err)

	assert.Equal(t, 16000, got.SampleRate)
	assert.InDelta(t, 1.0, got.Duration(), 0.01)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	norm := NewNormalizer(Options{Denoise: true})
	wav := sineWAV(t, 220, 0.5, 22050, 1)

	a, err := norm.Normalize(Blob{Data: wav, Format: "wav"})
	require.NoError(t, err)
	b, err := norm.Normalize(Blob{Data: wav, Format: "wav"})
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a.Encode(), b.Encode()), "same input must produce same canonical bytes")
}

func TestNormalizePeakLevel(t *testing.T) {
	norm := NewNormalizer(Options{PeakLevel: 0.8})
	wav := sineWAV(t, 440, 0.25, 16000, 1)

	got, err := norm.Normalize(Blob{Data: wav, Format: "wav"})
	require.NoError(t, err)

	var peak float32
	for _, s := range got.Samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	assert.InDelta(t, 0.8, float64(peak), 0.01)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	norm := NewNormalizer(Options{})
	wav := sineWAV(t, 440, 0.25, 16000, 1)
	original := append([]byte(nil), wav...)

	_, err := norm.Normalize(Blob{Data: wav, Format: "wav"})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(original, wav), "input blob must stay untouched")
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	norm := NewNormalizer(Options{})

	_, err := norm.Normalize(Blob{Data: []byte("definitely not audio"), Format: "wav"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDecode))
	assert.Equal(t, errors.CodeDecodeFailed, errors.CodeOf(err))
}

func TestNormalizeWrongDeclaredFormatFallsBack(t *testing.T) {
	norm := NewNormalizer(Options{})
	wav := sineWAV(t, 440, 0.25, 16000, 1)

	// Declared mp3, actually wav: the wav decoder must pick it up.
	got, err := norm.Normalize(Blob{Data: wav, Format: "mp3"})
	require.NoError(t, err)
	assert.NotEmpty(t, got.Samples)
}

func TestSuppressNoiseTooShort(t *testing.T) {
	_, ok := suppressNoise(make([]float32, 10), 16000)
	assert.False(t, ok)
}

func TestWavRoundTrip(t *testing.T) {
	samples := []float32{0, 0.25, -0.25, 0.5, -0.5, 0.79}
	data := encodeWAV(samples, 16000)

	got, rate, channels, err := decodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, 1, channels)
	require.Len(t, got, len(samples))
	for i := range samples {
		assert.InDelta(t, float64(samples[i]), float64(got[i]), 1.0/32768)
	}
}

func TestWAVSampleRate(t *testing.T) {
	assert.Equal(t, 22050, WAVSampleRate(sineWAV(t, 440, 0.1, 22050, 1)))
	assert.Equal(t, 0, WAVSampleRate([]byte("not a wav")))
	assert.Equal(t, 0, WAVSampleRate(nil))
}
