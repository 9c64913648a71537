// Package match is the local matcher (C4): it tries an exact fingerprint
// hash match first, falling back to approximate content-hash similarity,
// grounded on the teacher's pkg/acousticdna/service.go MatchSong offset-vote
// counting, with confidence reported per the spec's §4.4 contract (1.0 on
// an accepted exact hit, the Hamming similarity score on an approximate one).
package match

import (
	"fmt"

	"github.com/sodav/detection-core/internal/features"
	"github.com/sodav/detection-core/internal/model"
	"github.com/sodav/detection-core/internal/store"
)

// FingerprintLookup is the narrow seam the local matcher needs from the
// fingerprint store, following the teacher's interfaces.go DI pattern so
// tests can fake it without a real database.
type FingerprintLookup interface {
	LookupHashes(hashes []uint32) (map[uint32][]model.Fingerprint, error)
	ApproximateCandidates() ([]store.ApproximateCandidate, error)
}

// Source names the method that produced a Result, stored directly on
// TrackDetection.Source.
const (
	SourceExact       = "local_exact"
	SourceApproximate = "local_approximate"
)

// DefaultApproximateThreshold is the minimum Hamming similarity the spec
// requires to accept an approximate match.
const DefaultApproximateThreshold = 0.85

// minExactVoteRatio is the fraction of query hashes that must agree on the
// same (track, offset) before an exact match is accepted, guarding against
// a handful of coincidental hash collisions from a short or noisy window.
const minExactVoteRatio = 0.05

// Result is one candidate track identification.
type Result struct {
	TrackID    uint
	Source     string
	Confidence float64
}

// Matcher wraps the fingerprint store with the thresholds the local
// matcher applies.
type Matcher struct {
	store                FingerprintLookup
	approximateThreshold float64
}

func New(st FingerprintLookup, approximateThreshold float64) *Matcher {
	if approximateThreshold <= 0 {
		approximateThreshold = DefaultApproximateThreshold
	}
	return &Matcher{store: st, approximateThreshold: approximateThreshold}
}

// Match tries an exact fingerprint match, then an approximate content-hash
// match. A nil, nil result means no local match was found, not an error.
func (m *Matcher) Match(f *features.Features) (*Result, error) {
	exact, err := m.matchExact(f)
	if err != nil {
		return nil, fmt.Errorf("exact match: %w", err)
	}
	if exact != nil {
		return exact, nil
	}

	approx, err := m.matchApproximate(f)
	if err != nil {
		return nil, fmt.Errorf("approximate match: %w", err)
	}
	return approx, nil
}

func (m *Matcher) matchExact(f *features.Features) (*Result, error) {
	if len(f.Fingerprint) == 0 {
		return nil, nil
	}

	hashes := make([]uint32, 0, len(f.Fingerprint))
	for h := range f.Fingerprint {
		hashes = append(hashes, h)
	}

	rows, err := m.store.LookupHashes(hashes)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// trackVotes[trackID][offsetDeltaMs] = count, mirroring the teacher's
	// QueryFingerprints offset-voting scheme.
	trackVotes := make(map[uint]map[int32]int)

	for hash, queryCouples := range f.Fingerprint {
		dbCouples, ok := rows[hash]
		if !ok {
			continue
		}
		for _, qc := range queryCouples {
			for _, dc := range dbCouples {
				offset := int32(dc.OffsetMs) - int32(qc.OffsetMs)
				bucket, ok := trackVotes[dc.TrackID]
				if !ok {
					bucket = make(map[int32]int)
					trackVotes[dc.TrackID] = bucket
				}
				bucket[offset]++
			}
		}
	}

	var bestTrack uint
	bestCount := 0
	for trackID, offsets := range trackVotes {
		for _, count := range offsets {
			if count > bestCount {
				bestCount = count
				bestTrack = trackID
			}
		}
	}

	if bestCount == 0 {
		return nil, nil
	}

	ratio := float64(bestCount) / float64(len(f.Fingerprint))
	if ratio < minExactVoteRatio {
		return nil, nil
	}

	// An accepted exact-hash hit is a definitive identification per §4.4
	// point 1: confidence is always 1.0, never the vote-ratio score used
	// only to decide whether the hit clears minExactVoteRatio.
	return &Result{
		TrackID:    bestTrack,
		Source:     SourceExact,
		Confidence: 1.0,
	}, nil
}

func (m *Matcher) matchApproximate(f *features.Features) (*Result, error) {
	candidates, err := m.store.ApproximateCandidates()
	if err != nil {
		return nil, err
	}

	var bestTrack uint
	bestSimilarity := 0.0
	for _, c := range candidates {
		sim := store.HammingSimilarity(f.ContentHash, c.ContentHash)
		if sim > bestSimilarity {
			bestSimilarity = sim
			bestTrack = c.TrackID
		}
	}

	if bestSimilarity < m.approximateThreshold {
		return nil, nil
	}

	return &Result{
		TrackID:    bestTrack,
		Source:     SourceApproximate,
		Confidence: bestSimilarity,
	}, nil
}
