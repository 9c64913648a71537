package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeISRC(t *testing.T) {
	assert.Equal(t, "USRC17607839", NormalizeISRC("US-RC1-76-07839"))
	assert.Equal(t, "USRC17607839", NormalizeISRC("usrc17607839"))
	assert.Equal(t, "", NormalizeISRC("not-an-isrc"))
	assert.Equal(t, "", NormalizeISRC(""))
}

func TestGetOrCreateArtistDedupesByName(t *testing.T) {
	st := testStore(t)

	a1, err := st.GetOrCreateArtist("Daft Punk")
	require.NoError(t, err)

	a2, err := st.GetOrCreateArtist("Daft Punk")
	require.NoError(t, err)

	assert.Equal(t, a1.ID, a2.ID)
}

func TestGetOrCreateTrackPrefersISRC(t *testing.T) {
	st := testStore(t)

	first, err := st.GetOrCreateTrack(TrackInfo{
		Title: "One More Time", ArtistName: "Daft Punk", ISRC: "GB-DC1-00-01234",
	})
	require.NoError(t, err)

	second, err := st.GetOrCreateTrack(TrackInfo{
		Title: "One More Time (Radio Edit)", ArtistName: "Daft Punk", ISRC: "GBDC1000 1234",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same ISRC across differing titles must resolve to one track")
}

func TestGetOrCreateTrackFallsBackToTitleArtist(t *testing.T) {
	st := testStore(t)

	first, err := st.GetOrCreateTrack(TrackInfo{Title: "Derezzed", ArtistName: "Daft Punk"})
	require.NoError(t, err)

	second, err := st.GetOrCreateTrack(TrackInfo{Title: "Derezzed", ArtistName: "Daft Punk"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateArtistDefaultsBlankNameToUnknown(t *testing.T) {
	st := testStore(t)

	artist, err := st.GetOrCreateArtist("   ")
	require.NoError(t, err)
	assert.Equal(t, UnknownArtistName, artist.Name)
}

func TestGetOrCreateTrackDefaultsBlankTitleToUnknown(t *testing.T) {
	st := testStore(t)

	track, err := st.GetOrCreateTrack(TrackInfo{Title: "  ", ArtistName: "Daft Punk"})
	require.NoError(t, err)
	assert.Equal(t, UnknownTrackTitle, track.Title)
}

func TestGetOrCreateTrackBackfillsISRCWhenLearnedLater(t *testing.T) {
	st := testStore(t)

	first, err := st.GetOrCreateTrack(TrackInfo{Title: "Harder Better Faster Stronger", ArtistName: "Daft Punk"})
	require.NoError(t, err)
	assert.Equal(t, "", first.ISRC)

	second, err := st.GetOrCreateTrack(TrackInfo{
		Title: "Harder Better Faster Stronger", ArtistName: "Daft Punk", ISRC: "GBDC10001234",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "GBDC10001234", second.ISRC)
}

func TestGetOrCreateTrackMergesOptionalFieldsOnceLearned(t *testing.T) {
	st := testStore(t)

	first, err := st.GetOrCreateTrack(TrackInfo{Title: "Aerodynamic", ArtistName: "Daft Punk"})
	require.NoError(t, err)
	assert.Equal(t, "", first.Album)
	assert.Equal(t, "", first.Label)

	second, err := st.GetOrCreateTrack(TrackInfo{
		Title: "Aerodynamic", ArtistName: "Daft Punk",
		Album: "Discovery", Label: "Virgin", ReleaseDate: "2001-03-12", MusicBrainzID: "mbid-1",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Discovery", second.Album)
	assert.Equal(t, "Virgin", second.Label)
	assert.Equal(t, "2001-03-12", second.ReleaseDate)
	assert.Equal(t, "mbid-1", second.MusicBrainzID)

	third, err := st.GetOrCreateTrack(TrackInfo{
		Title: "Aerodynamic", ArtistName: "Daft Punk", Album: "Discovery (Reissue)",
	})
	require.NoError(t, err)
	assert.Equal(t, "Discovery", third.Album, "an already-known field is never overwritten by a later guess")
}
