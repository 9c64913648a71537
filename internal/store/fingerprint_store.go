package store

import (
	"fmt"
	"math/bits"

	"gorm.io/gorm"

	"github.com/sodav/detection-core/internal/model"
)

// Couple is one (hash, offset) pair extracted from a reference recording,
// grounded on the teacher's model.Couple.
type Couple struct {
	Hash     uint32
	OffsetMs uint32
}

// AttachFingerprints stores every couple for trackID in batches, the way
// the teacher's StoreFingerprints does via CreateInBatches, and records the
// track's fixed-length ContentHash (used later for approximate matching) on
// every row so a single fingerprint-hash lookup can also report it.
func (s *Store) AttachFingerprints(trackID uint, couples []Couple, contentHash uint64) error {
	entries := make([]model.Fingerprint, 0, len(couples))
	for _, c := range couples {
		entries = append(entries, model.Fingerprint{
			Hash:        c.Hash,
			TrackID:     trackID,
			OffsetMs:    c.OffsetMs,
			ContentHash: contentHash,
		})
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(entries); start += 500 {
			end := start + 500
			if end > len(entries) {
				end = len(entries)
			}
			if err := tx.CreateInBatches(entries[start:end], 500).Error; err != nil {
				return fmt.Errorf("batch insert fingerprints: %w", err)
			}
		}
		return tx.Model(&model.Track{}).Where("id = ?", trackID).
			Update("primary_fp_hashes", len(couples)).Error
	})
}

// LookupHashes returns every fingerprint row matching any of hashes, the
// way the teacher's GetCouplesByHashes batches an IN-clause lookup.
func (s *Store) LookupHashes(hashes []uint32) (map[uint32][]model.Fingerprint, error) {
	if len(hashes) == 0 {
		return map[uint32][]model.Fingerprint{}, nil
	}

	var rows []model.Fingerprint
	if err := s.DB.Where("hash IN ?", hashes).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("batch querying fingerprints: %w", err)
	}

	out := make(map[uint32][]model.Fingerprint)
	for _, r := range rows {
		out[r.Hash] = append(out[r.Hash], r)
	}
	return out, nil
}

// ApproximateCandidate is one track's content hash, for Hamming-distance
// scoring against a query content hash.
type ApproximateCandidate struct {
	TrackID     uint
	ContentHash uint64
}

// ApproximateCandidates returns the distinct (track, content hash) pairs
// registered so far, for in-memory Hamming-distance scoring by the local
// matcher. Distinct per track since every fingerprint row for a track
// carries the same ContentHash.
func (s *Store) ApproximateCandidates() ([]ApproximateCandidate, error) {
	var rows []struct {
		TrackID     uint
		ContentHash uint64
	}
	if err := s.DB.Model(&model.Fingerprint{}).
		Select("track_id, content_hash").
		Group("track_id, content_hash").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing content hashes: %w", err)
	}

	out := make([]ApproximateCandidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, ApproximateCandidate{TrackID: r.TrackID, ContentHash: r.ContentHash})
	}
	return out, nil
}

// HammingSimilarity is the spec's resolution of the approximate_match Open
// Question: 1 - (popcount(a XOR b) / bit_length), bounded to [0, 1].
func HammingSimilarity(a, b uint64) float64 {
	distance := bits.OnesCount64(a ^ b)
	return 1 - float64(distance)/64
}
