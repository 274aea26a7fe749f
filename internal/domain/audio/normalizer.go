package audio

import (
	"bytes"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/hajimehoshi/go-mp3"

	"speechbridge-server-go/internal/platform/errors"
	"speechbridge-server-go/internal/platform/logging"
)

// Blob is an uploaded audio payload with its declared container format.
type Blob struct {
	Data   []byte
	Format string // "wav", "mp3"; empty means try everything
}

// Normalized is a mono waveform at the normalizer's target sample rate.
type Normalized struct {
	Samples    []float32
	SampleRate int
}

// Duration reports the waveform length in seconds.
func (n *Normalized) Duration() float64 {
	if n.SampleRate == 0 {
		return 0
	}
	return float64(len(n.Samples)) / float64(n.SampleRate)
}

// Encode renders the canonical 16-bit PCM WAV byte form of the waveform.
func (n *Normalized) Encode() []byte {
	return encodeWAV(n.Samples, n.SampleRate)
}

// Options configures the normalizer behaviour.
type Options struct {
	TargetSampleRate int
	PeakLevel        float64
	Denoise          bool
	Logger           *logging.Logger
}

// Normalizer converts uploaded audio of any supported container into the
// canonical mono waveform the model adapters consume. The same input bytes
// always produce the same output.
type Normalizer struct {
	targetRate int
	peakLevel  float32
	denoise    bool
	logger     *logging.Logger
}

func NewNormalizer(opts Options) *Normalizer {
	if opts.TargetSampleRate <= 0 {
		opts.TargetSampleRate = 16000
	}
	if opts.PeakLevel <= 0 || opts.PeakLevel > 1 {
		opts.PeakLevel = 0.8
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}
	return &Normalizer{
		targetRate: opts.TargetSampleRate,
		peakLevel:  float32(opts.PeakLevel),
		denoise:    opts.Denoise,
		logger:     opts.Logger,
	}
}

// Normalize decodes, downmixes, resamples, denoises and peak-normalizes the
// blob. The input is never mutated. Denoising is best effort: when it cannot
// run the resampled signal passes through unchanged.
func (n *Normalizer) Normalize(blob Blob) (*Normalized, error) {
	samples, rate, channels, err := n.decode(blob)
	if err != nil {
		return nil, errors.WrapCoded(errors.KindDecode, errors.CodeDecodeFailed,
			"audio.normalize", "unable to decode audio payload", err)
	}

	mono := downmix(samples, channels)
	mono = resample(mono, rate, n.targetRate)

	if n.denoise {
		if denoised, ok := suppressNoise(mono, n.targetRate); ok {
			mono = denoised
		} else {
			n.logger.DebugTag("AUDIO", "noise suppression skipped, signal passed through")
		}
	}

	normalizePeak(mono, n.peakLevel)

	return &Normalized{Samples: mono, SampleRate: n.targetRate}, nil
}

// decode tries the declared format first, then the remaining decoders.
func (n *Normalizer) decode(blob Blob) ([]float32, int, int, error) {
	type decoder struct {
		name string
		fn   func([]byte) ([]float32, int, int, error)
	}
	decoders := []decoder{
		{"wav", decodeWAV},
		{"mp3", decodeMP3},
	}

	declared := strings.ToLower(blob.Format)
	sort.SliceStable(decoders, func(i, j int) bool {
		return decoders[i].name == declared && decoders[j].name != declared
	})

	var lastErr error
	for _, d := range decoders {
		samples, rate, channels, err := d.fn(blob.Data)
		if err == nil {
			return samples, rate, channels, nil
		}
		lastErr = err
	}
	return nil, 0, 0, lastErr
}

func decodeMP3(data []byte) ([]float32, int, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, err
	}
	// go-mp3 always emits 16-bit little-endian stereo.
	return pcm16ToFloat(pcm), dec.SampleRate(), 2, nil
}

func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// resample converts the waveform between rates by linear interpolation.
func resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 {
		return samples
	}
	outLen := int(float64(len(samples)) * float64(to) / float64(from))
	if outLen == 0 {
		outLen = 1
	}
	out := make([]float32, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// suppressNoise applies a frame-wise noise gate: the floor is estimated from
// the quietest frames and frames near the floor are attenuated. Returns
// ok=false when the signal is too short to estimate a floor.
func suppressNoise(samples []float32, rate int) ([]float32, bool) {
	frameLen := rate / 50 // 20ms frames
	if frameLen == 0 || len(samples) < frameLen*5 {
		return nil, false
	}

	numFrames := len(samples) / frameLen
	energies := make([]float64, numFrames)
	for f := 0; f < numFrames; f++ {
		var sum float64
		for i := f * frameLen; i < (f+1)*frameLen; i++ {
			sum += float64(samples[i]) * float64(samples[i])
		}
		energies[f] = math.Sqrt(sum / float64(frameLen))
	}

	sorted := append([]float64(nil), energies...)
	sort.Float64s(sorted)
	floor := sorted[numFrames/10] // 10th percentile RMS
	gate := floor * 2

	out := append([]float32(nil), samples...)
	for f := 0; f < numFrames; f++ {
		if energies[f] >= gate {
			continue
		}
		for i := f * frameLen; i < (f+1)*frameLen; i++ {
			out[i] *= 0.1
		}
	}
	return out, true
}

// normalizePeak scales the waveform in place so its peak sits at level.
func normalizePeak(samples []float32, level float32) {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	gain := level / peak
	for i := range samples {
		samples[i] *= gain
	}
}
