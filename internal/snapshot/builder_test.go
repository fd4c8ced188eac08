package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/emby-exporter/internal/emby"
	"github.com/randomizedcoder/emby-exporter/internal/labeltree"
)

func fixture() *emby.Data {
	return &emby.Data{
		Info: emby.SystemInfo{
			ServerName: "media", Version: "4.8.0.0", LocalAddress: "http://10.0.0.2:8096",
			WanAddress: "http://203.0.113.7:8096", ID: "abc123", OperatingSystem: "Linux",
		},
		Library: map[string][]emby.Item{
			"movies": {
				{Name: "Alien", Genres: []string{"Horror", "Science Fiction"}, ProductionYear: 1979, UserData: emby.UserData{Played: true}},
				{Name: "Aliens", Genres: []string{"Science Fiction", "Science Fiction"}, ProductionYear: 1986, UserData: emby.UserData{Played: true, IsFavorite: true}},
				{Name: "Untitled", ProductionYear: 0},
			},
			"series": {
				{Name: "The Wire", Genres: []string{"Crime", "Drama"}, ProductionYear: 2002, UserData: emby.UserData{IsFavorite: true}},
			},
			"albums": nil,
		},
		Devices: []emby.Device{
			{Name: "Living Room", ID: "d1", LastUserName: "alice", LastUserID: "u1", AppName: "Emby Theater", AppVersion: "3.0.20"},
			{Name: "Phone", ID: "d2", LastUserName: "bob", LastUserID: "u2", AppName: "Emby for Android", AppVersion: "3.4.1"},
		},
	}
}

// normalized builds the snapshots and normalizes each against its schema.
func normalized(t *testing.T, data *emby.Data) map[string]*labeltree.Node {
	t.Helper()
	snaps := Build(data)
	out := make(map[string]*labeltree.Node, len(snaps))
	for _, def := range Definitions() {
		s, ok := snaps[def.Name]
		require.True(t, ok, "no snapshot for %s", def.Name)
		n, err := labeltree.Normalize(def.Arity(), s)
		require.NoError(t, err, def.Name)
		out[def.Name] = n
	}
	return out
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, 7)

	arity := map[string]int{}
	for _, d := range defs {
		arity[d.Name] = d.Arity()
	}
	assert.Equal(t, map[string]int{
		Info:           6,
		Devices:        6,
		LibrarySize:    1,
		Genres:         2,
		ProductionYear: 2,
		Played:         1,
		IsFavorite:     1,
	}, arity)

	// callers may not alias the package table
	defs[0].Labels[0] = "changed"
	assert.Equal(t, "server_name", Definitions()[0].Labels[0])
}

func TestDefinitions_InfoHelp(t *testing.T) {
	for _, d := range Definitions() {
		if d.Name == Info {
			assert.Equal(t, "information about the emby server", d.Help)
			return
		}
	}
	t.Fatalf("%s not defined", Info)
}

func TestBuild_Catalogue(t *testing.T) {
	got := normalized(t, fixture())

	tests := []struct {
		metric string
		want   string
	}{
		{Info, "{media: {4.8.0.0: {http://10.0.0.2:8096: {http://203.0.113.7:8096: {abc123: {Linux: 1}}}}}}"},
		{LibrarySize, "{albums: 0, movies: 3, series: 1}"},
		{Genres, "{albums: {}, movies: {Horror: 1, Science Fiction: 2}, series: {Crime: 1, Drama: 1}}"},
		{ProductionYear, "{albums: {}, movies: {1979: 1, 1986: 1}, series: {2002: 1}}"},
		{Played, "{albums: 0, movies: 2, series: 0}"},
		{IsFavorite, "{albums: 0, movies: 1, series: 1}"},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			assert.Equal(t, tt.want, got[tt.metric].String())
		})
	}
}

func TestBuild_Devices(t *testing.T) {
	got := normalized(t, fixture())[Devices]

	assert.Equal(t, 2, got.Leaves())
	leaf, ok := got.Lookup("Phone", "d2", "bob", "u2", "Emby for Android", "3.4.1")
	require.True(t, ok)
	assert.Equal(t, 1.0, leaf.Value())
}

func TestBuild_EmptyServer(t *testing.T) {
	got := normalized(t, &emby.Data{Library: map[string][]emby.Item{}})

	assert.Equal(t, 0, got[Devices].Leaves())
	assert.Equal(t, 0, got[LibrarySize].Leaves())
	// info always carries one row, even with empty fields
	assert.Equal(t, 1, got[Info].Leaves())
}

func TestBuild_RemovedGenreIsZeroed(t *testing.T) {
	data := fixture()
	rec := labeltree.NewReconciler(Genres, 2, labeltree.SinkFunc(func([]string, float64) error { return nil }), nil)

	_, err := rec.Apply(Build(data)[Genres])
	require.NoError(t, err)

	data.Library["movies"] = data.Library["movies"][2:] // only the untitled item is left
	res, err := rec.Apply(Build(data)[Genres])
	require.NoError(t, err)

	assert.Equal(t, 2, res.Zeroed)
	leaf, ok := rec.Tree().Lookup("movies", "Horror")
	require.True(t, ok)
	assert.Equal(t, 0.0, leaf.Value())
}
