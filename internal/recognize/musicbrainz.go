package recognize

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const musicBrainzAPIURL = "https://musicbrainz.org/ws/2/recording"

// MusicBrainz resolves a track by the ISRC embedded in the captured
// sample's container tags, a cheap fallback the original tries before
// reaching for AudD: most streams don't carry tags, but the ones that do
// (pre-recorded inserts, some CDN relays) resolve without an external
// fingerprint lookup at all.
type MusicBrainz struct {
	client *resty.Client
}

func NewMusicBrainz() *MusicBrainz {
	return &MusicBrainz{client: resty.New()}
}

func (m *MusicBrainz) Name() string { return "musicbrainz" }

func (m *MusicBrainz) Recognize(ctx context.Context, samplePath string, durationSec float64) (*Candidate, error) {
	isrc, err := readISRCTag(ctx, samplePath)
	if err != nil {
		return nil, fmt.Errorf("reading isrc tag: %w", err)
	}
	if isrc == "" {
		return nil, nil
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query": "isrc:" + isrc,
			"inc":   "releases+label-rels",
			"fmt":   "json",
		}).
		SetHeader("User-Agent", "sodav-detection-core/1.0").
		Get(musicBrainzAPIURL)
	if err != nil {
		return nil, fmt.Errorf("calling musicbrainz: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("musicbrainz returned status %d", resp.StatusCode())
	}

	body := resp.String()
	recordings := gjson.Get(body, "recordings")
	if !recordings.IsArray() || len(recordings.Array()) == 0 {
		return nil, nil
	}

	best := recordings.Array()[0]
	title := best.Get("title").String()
	artist := best.Get("artist-credit.0.name").String()
	score := best.Get("score").Float() / 100.0
	if title == "" || artist == "" {
		return nil, nil
	}

	release := best.Get("releases.0")
	album := release.Get("title").String()
	releaseDate := release.Get("date").String()
	label := release.Get("label-info.0.label.name").String()
	mbid := best.Get("id").String()

	return &Candidate{
		Title:         title,
		Artist:        artist,
		Album:         album,
		ISRC:          isrc,
		Label:         label,
		ReleaseDate:   releaseDate,
		MusicBrainzID: mbid,
		Source:        m.Name(),
		Confidence:    score,
	}, nil
}

type ffprobeTags struct {
	Format struct {
		Tags map[string]string `json:"tags"`
	} `json:"format"`
}

func readISRCTag(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "quiet", "-print_format", "json", "-show_format", path)
	out, err := cmd.Output()
	if err != nil {
		return "", nil // absence of ffprobe/tags is not fatal for this fallback
	}

	var probe ffprobeTags
	if jsonErr := json.Unmarshal(out, &probe); jsonErr != nil {
		return "", nil
	}

	for key, val := range probe.Format.Tags {
		if strings.EqualFold(key, "isrc") || strings.EqualFold(key, "TSRC") {
			return strings.ToUpper(val), nil
		}
	}
	return "", nil
}
