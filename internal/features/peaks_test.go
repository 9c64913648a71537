package features

import "testing"

func TestExtractPeaksFromToneMix(t *testing.T) {
	const sampleRate = 11025
	samples := make([]float64, sampleRate*3)
	tone1 := sineWave(440, sampleRate, len(samples))
	tone2 := sineWave(1200, sampleRate, len(samples))
	for i := range samples {
		samples[i] = tone1[i] + 0.6*tone2[i]
	}

	spec, err := ComputeSpectrogram(samples, 0, 0)
	if err != nil {
		t.Fatalf("ComputeSpectrogram: %v", err)
	}

	peaks := ExtractPeaks(spec, sampleRate)
	if len(peaks) == 0 {
		t.Fatal("expected peaks from a two-tone signal")
	}

	for i := 1; i < len(peaks); i++ {
		if peaks[i].TimeIdx < peaks[i-1].TimeIdx {
			t.Fatal("peaks not sorted by time index")
		}
	}
	for i, p := range peaks {
		if p.TimeIdx < 0 || p.FreqIdx < 0 {
			t.Errorf("peak %d has negative index: %+v", i, p)
		}
	}
}

func TestExtractPeaksEmptySpectrogram(t *testing.T) {
	var empty [][]float64
	if peaks := ExtractPeaks(empty, 11025); peaks != nil {
		t.Errorf("expected nil peaks for empty spectrogram, got %d", len(peaks))
	}
}

func TestMinInt(t *testing.T) {
	cases := []struct{ a, b, want int }{
		{5, 10, 5},
		{10, 5, 5},
		{3, 3, 3},
	}
	for _, c := range cases {
		if got := minInt(c.a, c.b); got != c.want {
			t.Errorf("minInt(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
