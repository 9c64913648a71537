// Package capture pulls a PCM window out of a live radio stream by shelling
// out to ffmpeg and streaming its raw s16le output, grounded on the
// teacher's pkg/acousticdna/audio/processor.go ConvertToMonoWAV (same
// exec.CommandContext idiom and -ac 1 -ar 11025 flags, with -f s16le raw
// output to stdout instead of a WAV file)
// generalized from "convert one file" to "stream-read one station until a
// termination condition fires".
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"time"

	"github.com/sodav/detection-core/internal/logger"
)

// SampleRate is the rate every captured window is resampled to, matching
// the teacher's 11025 Hz default.
const SampleRate = 11025

// Reason explains why a capture attempt stopped.
type Reason string

const (
	ReasonSilenceDetected        Reason = "silence_detected"
	ReasonSpectralChangeDetected Reason = "spectral_change_detected"
	ReasonMaxDurationReached     Reason = "max_duration_reached"
	ReasonError                  Reason = "error"
)

// minCaptureSamples is the ≈1s floor below which a decoded buffer is
// treated as a capture failure rather than a genuine short window.
const minCaptureSamples = SampleRate

// DetectionParams tunes the rolling-window termination checks C1 runs
// against the stream. SilenceThreshold and SpectralChangeThreshold are
// expressed relative to the 16-bit peak, i.e. in the same [0,1] normalized
// range as a decoded sample.
type DetectionParams struct {
	MaxDuration             time.Duration
	SilenceThreshold        float64
	MinSilenceSeconds       time.Duration
	SpectralChangeThreshold float64
}

// DefaultDetectionParams mirrors the spec's stated defaults: a 180s safety
// ceiling, and thresholds tuned for a 16-bit PCM stream.
func DefaultDetectionParams() DetectionParams {
	return DetectionParams{
		MaxDuration:             180 * time.Second,
		SilenceThreshold:        0.02,
		MinSilenceSeconds:       3 * time.Second,
		SpectralChangeThreshold: 0.3,
	}
}

// segmentDuration is the size of one analysis chunk; rollingWindowSegments
// segments (2s) are kept for the spectral-change comparison, and the
// termination checks run every evaluateEverySegments (1s), per the spec's
// "every ~5 chunks, analyze a rolling window of the last 10 segments".
const (
	segmentDuration       = 200 * time.Millisecond
	rollingWindowSegments = 10
	evaluateEverySegments = 5
	segmentSamples        = SampleRate * int(segmentDuration/time.Millisecond) / 1000
	bytesPerSample        = 2 // s16le
)

// Window is one captured, decoded chunk of mono PCM.
type Window struct {
	Samples             []float64
	SampleRate          int
	Captured            time.Time
	CapturedDurationSec float64
	TerminationReason   Reason
}

// Capturer streams chunks from a stream URL until one of Params' termination
// conditions fires, analyzing them as they arrive rather than decoding a
// fixed-length file.
type Capturer struct {
	ScratchDir string
	Params     DetectionParams
	log        *logger.Logger
}

func New(scratchDir string, log *logger.Logger) *Capturer {
	return &Capturer{
		ScratchDir: scratchDir,
		Params:     DefaultDetectionParams(),
		log:        log.With(logger.CategoryDetection),
	}
}

// Capture reads mono 16-bit PCM from streamURL until one of the three
// termination conditions fires (silence, spectral change, or the max
// duration ceiling) and returns what was captured. A nil Window means the
// attempt failed outright (stream unreachable, decode failure, or a buffer
// too short to be useful) — the caller should treat the cycle as producing
// nothing, not retry inline.
func (c *Capturer) Capture(ctx context.Context, stationID uint, streamURL string) (*Window, Reason, error) {
	captureCtx, cancel := context.WithTimeout(ctx, c.Params.MaxDuration+10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(
		captureCtx,
		"ffmpeg",
		"-v", "quiet",
		"-i", streamURL,
		"-f", "s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, ReasonError, nil
	}
	if err := cmd.Start(); err != nil {
		c.log.Warnf("starting ffmpeg for station %d: %v", stationID, err)
		return nil, ReasonError, nil
	}

	samples, reason := readUntilTermination(bufio.NewReaderSize(stdout, 64*1024), c.Params)
	_ = cmd.Process.Kill()
	_ = cmd.Wait()

	if ctx.Err() != nil {
		return nil, ReasonError, ctx.Err()
	}

	if len(samples) < minCaptureSamples {
		c.log.Warnf("capture for station %d produced only %d samples, treating as failure", stationID, len(samples))
		return nil, ReasonError, nil
	}

	return &Window{
		Samples:             samples,
		SampleRate:          SampleRate,
		Captured:            time.Now(),
		CapturedDurationSec: float64(len(samples)) / float64(SampleRate),
		TerminationReason:   reason,
	}, reason, nil
}

// readUntilTermination streams s16le samples off r in fixed-size segments,
// feeding each into a streamAnalyzer until it reports a termination
// condition or the stream ends (io.EOF, an ffmpeg exit, or a connection
// drop — all folded into ReasonError when nothing useful was captured, or
// ReasonMaxDurationReached when the buffer is already long enough to use).
func readUntilTermination(r io.Reader, params DetectionParams) ([]float64, Reason) {
	analyzer := newStreamAnalyzer(SampleRate, params)
	var all []float64

	buf := make([]byte, segmentSamples*bytesPerSample)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			seg := decodeSamples(buf[:n])
			all = append(all, seg...)
			if reason, done := analyzer.push(seg); done {
				return all, reason
			}
		}
		if err != nil {
			if len(all) >= minCaptureSamples {
				return all, ReasonMaxDurationReached
			}
			return all, ReasonError
		}
	}
}

func decodeSamples(buf []byte) []float64 {
	samples := make([]float64, len(buf)/bytesPerSample)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		samples[i] = float64(v) / 32768.0
	}
	return samples
}

// streamAnalyzer holds the rolling-window state C1's termination protocol
// checks every evaluateEverySegments segments.
type streamAnalyzer struct {
	sampleRate         int
	params             DetectionParams
	segments           [][]float64
	segmentCount       int
	elapsed            time.Duration
	consecutiveSilence time.Duration
}

func newStreamAnalyzer(sampleRate int, params DetectionParams) *streamAnalyzer {
	return &streamAnalyzer{sampleRate: sampleRate, params: params}
}

// push feeds one segment in and reports whether a termination condition
// fired, and which.
func (a *streamAnalyzer) push(seg []float64) (Reason, bool) {
	if len(seg) == 0 {
		return "", false
	}

	segDur := time.Duration(float64(len(seg)) / float64(a.sampleRate) * float64(time.Second))
	a.elapsed += segDur
	a.segmentCount++

	if rms(seg) < a.params.SilenceThreshold {
		a.consecutiveSilence += segDur
	} else {
		a.consecutiveSilence = 0
	}

	a.segments = append(a.segments, seg)
	if len(a.segments) > rollingWindowSegments {
		a.segments = a.segments[1:]
	}

	if a.elapsed >= a.params.MaxDuration {
		return ReasonMaxDurationReached, true
	}

	if a.segmentCount%evaluateEverySegments != 0 || len(a.segments) < rollingWindowSegments {
		return "", false
	}

	if a.consecutiveSilence >= a.params.MinSilenceSeconds {
		return ReasonSilenceDetected, true
	}

	prev := a.segments[len(a.segments)-2]
	cur := a.segments[len(a.segments)-1]
	if meanAbsDiff(prev, cur) >= a.params.SpectralChangeThreshold {
		return ReasonSpectralChangeDetected, true
	}

	return "", false
}

func rms(samples []float64) float64 {
	var sumSq float64
	for _, s := range samples {
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

func meanAbsDiff(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(n)
}
