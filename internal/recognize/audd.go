package recognize

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const auddAPIURL = "https://api.audd.io/"

// Audd is the last link in the chain: a paid, general-purpose audio
// recognition API used when local matching and the free catalogs
// (AcoustID, MusicBrainz) come up empty.
type Audd struct {
	APIKey string
	client *resty.Client
}

func NewAudd(apiKey string) *Audd {
	return &Audd{APIKey: apiKey, client: resty.New()}
}

func (a *Audd) Name() string { return "audd" }

func (a *Audd) Recognize(ctx context.Context, samplePath string, durationSec float64) (*Candidate, error) {
	if a.APIKey == "" {
		return nil, errNotConfigured(a.Name())
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetFile("file", samplePath).
		SetFormData(map[string]string{
			"api_token": a.APIKey,
			"return":    "spotify,musicbrainz,deezer,isrc",
		}).
		Post(auddAPIURL)
	if err != nil {
		return nil, fmt.Errorf("calling audd: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("audd returned status %d", resp.StatusCode())
	}

	body := resp.String()
	if gjson.Get(body, "status").String() != "success" {
		return nil, fmt.Errorf("audd status not success: %s", body)
	}

	result := gjson.Get(body, "result")
	if !result.Exists() || result.Type.String() == "Null" {
		return nil, nil
	}

	title := result.Get("title").String()
	artist := result.Get("artist").String()
	isrc := result.Get("isrc").String()
	if title == "" || artist == "" {
		return nil, nil
	}

	return &Candidate{
		Title:         title,
		Artist:        artist,
		Album:         result.Get("album").String(),
		ISRC:          isrc,
		Label:         result.Get("label").String(),
		ReleaseDate:   result.Get("release_date").String(),
		MusicBrainzID: result.Get("musicbrainz.0.id").String(),
		Source:        a.Name(),
		Confidence:    auddConfidence(result),
	}, nil
}

// auddConfidence reads result.score when present: a 1-100 scale is
// normalized to [0,1], a score already in [0,1] is used as-is, and absent a
// score altogether a positive identification from this paid, general-purpose
// recognizer defaults to 0.8.
func auddConfidence(result gjson.Result) float64 {
	score := result.Get("score")
	if !score.Exists() {
		return 0.8
	}
	v := score.Float()
	if v > 1 {
		return v / 100.0
	}
	return v
}
