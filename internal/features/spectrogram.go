// Package features turns a PCM sample window into the peaks, fingerprint
// hashes and content hash the matcher and recognizer chain need, grounded on
// the teacher's pkg/acousticdna/fingerprint package.
package features

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	WindowSize = 1024
	HopSize    = 256
)

// Hamming returns an n-point Hamming window.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func magnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT computes the magnitude spectrogram of samples using a sliding
// windowSize/hopSize frame, mirroring the teacher's STFT.
func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if len(window) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if len(samples) < windowSize {
		return nil, errors.New("input shorter than window size")
	}

	spectrogram := make([][]float64, 0)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		frame := make([]float64, windowSize)
		copy(frame, samples[start:start+windowSize])
		for i := 0; i < windowSize; i++ {
			frame[i] *= window[i]
		}
		spectrogram = append(spectrogram, magnitudeSpectrum(fft.FFTReal(frame)))
	}
	return spectrogram, nil
}

// ComputeSpectrogram runs STFT with the default window/hop sizes, falling
// back to defaults when the caller passes 0.
func ComputeSpectrogram(samples []float64, windowSizeArg, hopSizeArg int) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, errors.New("samples cannot be empty")
	}
	ws := windowSizeArg
	if ws == 0 {
		ws = WindowSize
	}
	hs := hopSizeArg
	if hs == 0 {
		hs = HopSize
	}
	if len(samples) < ws {
		return nil, errors.New("audio too short for window size")
	}
	return STFT(samples, ws, hs, Hamming(ws))
}
