package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const acoustIDAPIURL = "https://api.acoustid.org/v2/lookup"

// AcoustID identifies a sample via the AcoustID fingerprint lookup API,
// grounded on find_acoustid_match: it shells out to fpcalc for a Chromaprint
// fingerprint, then GETs the lookup endpoint with (client, meta, fingerprint,
// duration) query params.
type AcoustID struct {
	APIKey     string
	FpcalcPath string
	client     *resty.Client
}

func NewAcoustID(apiKey, fpcalcPath string) *AcoustID {
	if fpcalcPath == "" {
		fpcalcPath = "fpcalc"
	}
	return &AcoustID{APIKey: apiKey, FpcalcPath: fpcalcPath, client: resty.New()}
}

func (a *AcoustID) Name() string { return "acoustid" }

type fpcalcOutput struct {
	Duration    float64 `json:"duration"`
	Fingerprint string  `json:"fingerprint"`
}

func (a *AcoustID) Recognize(ctx context.Context, samplePath string, durationSec float64) (*Candidate, error) {
	if a.APIKey == "" {
		return nil, errNotConfigured(a.Name())
	}

	fp, duration, err := a.chromaprint(ctx, samplePath)
	if err != nil {
		return nil, fmt.Errorf("computing chromaprint fingerprint: %w", err)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client":      a.APIKey,
			"meta":        "recordings+releasegroups+compress",
			"fingerprint": fp,
			"duration":    strconv.Itoa(int(duration)),
		}).
		Get(acoustIDAPIURL)
	if err != nil {
		return nil, fmt.Errorf("calling acoustid: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("acoustid returned status %d", resp.StatusCode())
	}

	body := resp.String()
	if gjson.Get(body, "status").String() != "ok" {
		return nil, fmt.Errorf("acoustid status not ok: %s", body)
	}

	results := gjson.Get(body, "results")
	if !results.IsArray() || len(results.Array()) == 0 {
		return nil, nil
	}

	best := results.Array()[0]
	score := best.Get("score").Float()

	recordings := best.Get("recordings")
	if !recordings.IsArray() || len(recordings.Array()) == 0 {
		return nil, nil
	}
	recording := recordings.Array()[0]

	title := recording.Get("title").String()
	artist := recording.Get("artists.0.name").String()
	isrc := recording.Get("isrcs.0").String()
	album := recording.Get("releasegroups.0.title").String()
	mbid := recording.Get("id").String()
	if title == "" || artist == "" {
		return nil, nil
	}

	return &Candidate{
		Title:         title,
		Artist:        artist,
		Album:         album,
		ISRC:          isrc,
		MusicBrainzID: mbid,
		DurationMs:    int(duration * 1000),
		Source:        a.Name(),
		Confidence:    score,
	}, nil
}

func (a *AcoustID) chromaprint(ctx context.Context, samplePath string) (fingerprint string, durationSec float64, err error) {
	cmd := exec.CommandContext(ctx, a.FpcalcPath, "-json", samplePath)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("running fpcalc: %w", err)
	}

	var out fpcalcOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return "", 0, fmt.Errorf("parsing fpcalc output: %w", err)
	}
	return out.Fingerprint, out.Duration, nil
}
