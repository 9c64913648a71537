package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/sodav/detection-core/internal/model"
)

// isrcPattern validates and normalizes an ISRC: CC-XXX-YY-NNNNN with the
// hyphens stripped, per the spec's glossary definition.
var isrcPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{3}[0-9]{2}[0-9]{5}$`)

// NormalizeISRC strips separators and uppercases, returning "" if the
// result doesn't match the ISRC shape.
func NormalizeISRC(raw string) string {
	cleaned := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(raw, "-", ""), " ", ""))
	if !isrcPattern.MatchString(cleaned) {
		return ""
	}
	return cleaned
}

// TrackInfo is the identifying metadata for get-or-create resolution.
// Album, Label, ReleaseDate and MusicBrainzID are optional: when a track is
// found rather than created, any of these that are newly supplied and
// previously unset on the stored row are merged in, per the spec's
// get_or_create_track merge-in rule.
type TrackInfo struct {
	Title          string
	ArtistName     string
	Album          string
	ISRC           string
	Label          string
	ReleaseDate    string
	DurationMs     int
	MusicBrainzID  string
	ExternalSource string
}

// UnknownArtistName is substituted for a blank or whitespace-only artist
// name, per the spec's data model default.
const UnknownArtistName = "Unknown Artist"

// UnknownTrackTitle is substituted for a blank or whitespace-only track
// title, per the spec's data model default.
const UnknownTrackTitle = "Unknown Track"

// GetOrCreateArtist finds an artist by normalized name, creating one on
// miss. Safe under concurrent callers thanks to the unique index on Name,
// following the retry-on-constraint-violation idiom in the teacher's
// RegisterSong.
func (s *Store) GetOrCreateArtist(name string) (*model.Artist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = UnknownArtistName
	}

	var artist model.Artist
	err := s.DB.Where("name = ?", name).First(&artist).Error
	if err == nil {
		return &artist, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("querying artist: %w", err)
	}

	artist = model.Artist{Name: name}
	if err := s.DB.Create(&artist).Error; err != nil {
		if isUniqueViolation(err) {
			if fetchErr := s.DB.Where("name = ?", name).First(&artist).Error; fetchErr != nil {
				return nil, fmt.Errorf("fetching artist after constraint violation: %w", fetchErr)
			}
			return &artist, nil
		}
		return nil, fmt.Errorf("creating artist: %w", err)
	}
	return &artist, nil
}

// GetOrCreateTrack resolves a track by ISRC when present (the strongest
// dedup key), falling back to (artist, title). A track found by one key
// whose other metadata has since become known is updated in place.
func (s *Store) GetOrCreateTrack(info TrackInfo) (*model.Track, error) {
	artist, err := s.GetOrCreateArtist(info.ArtistName)
	if err != nil {
		return nil, err
	}

	info.Title = strings.TrimSpace(info.Title)
	if info.Title == "" {
		info.Title = UnknownTrackTitle
	}

	isrc := NormalizeISRC(info.ISRC)

	var track model.Track
	if isrc != "" {
		err := s.DB.Where("isrc = ?", isrc).First(&track).Error
		if err == nil {
			if mergeErr := s.mergeTrackFields(&track, info, isrc); mergeErr != nil {
				return nil, mergeErr
			}
			return &track, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("querying track by isrc: %w", err)
		}
	}

	err = s.DB.Where("title = ? AND artist_id = ?", info.Title, artist.ID).First(&track).Error
	if err == nil {
		if mergeErr := s.mergeTrackFields(&track, info, isrc); mergeErr != nil {
			return nil, mergeErr
		}
		return &track, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("querying track by title/artist: %w", err)
	}

	track = model.Track{
		Title:          info.Title,
		ArtistID:       artist.ID,
		Album:          info.Album,
		ISRC:           isrc,
		Label:          info.Label,
		ReleaseDate:    info.ReleaseDate,
		DurationMs:     info.DurationMs,
		MusicBrainzID:  info.MusicBrainzID,
		ExternalSource: info.ExternalSource,
	}
	if err := s.DB.Create(&track).Error; err != nil {
		if isUniqueViolation(err) {
			if fetchErr := s.DB.Where("title = ? AND artist_id = ?", info.Title, artist.ID).
				First(&track).Error; fetchErr != nil {
				return nil, fmt.Errorf("fetching track after constraint violation: %w", fetchErr)
			}
			return &track, nil
		}
		return nil, fmt.Errorf("creating track: %w", err)
	}
	return &track, nil
}

// mergeTrackFields backfills album/isrc/label/release_date/musicbrainz_id
// on an already-resolved track with whatever newly-supplied values the
// caller has and the stored row doesn't, per §4.6's "merge-in any
// newly-supplied optional fields that were previously null" rule. Title,
// artist and duration are identity fields set once at creation and never
// overwritten here.
func (s *Store) mergeTrackFields(track *model.Track, info TrackInfo, isrc string) error {
	updates := map[string]interface{}{}
	if isrc != "" && track.ISRC == "" {
		updates["isrc"] = isrc
	}
	if info.Album != "" && track.Album == "" {
		updates["album"] = info.Album
	}
	if info.Label != "" && track.Label == "" {
		updates["label"] = info.Label
	}
	if info.ReleaseDate != "" && track.ReleaseDate == "" {
		updates["release_date"] = info.ReleaseDate
	}
	if info.MusicBrainzID != "" && track.MusicBrainzID == "" {
		updates["musicbrainz_id"] = info.MusicBrainzID
	}
	if len(updates) == 0 {
		return nil
	}

	if err := s.DB.Model(track).Updates(updates).Error; err != nil {
		return fmt.Errorf("merging track fields for track %d: %w", track.ID, err)
	}
	for k, v := range updates {
		switch k {
		case "isrc":
			track.ISRC = v.(string)
		case "album":
			track.Album = v.(string)
		case "label":
			track.Label = v.(string)
		case "release_date":
			track.ReleaseDate = v.(string)
		case "musicbrainz_id":
			track.MusicBrainzID = v.(string)
		}
	}
	return nil
}

// GetTrackByID loads a track by primary key, used after a local match
// result to recover its ArtistID for stats rollups.
func (s *Store) GetTrackByID(id uint) (*model.Track, error) {
	var track model.Track
	if err := s.DB.First(&track, id).Error; err != nil {
		return nil, fmt.Errorf("reading track %d: %w", id, err)
	}
	return &track, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}
