// Package snapshot turns one poll's worth of Emby data into the label-tree
// snapshots the exporter publishes.
//
// Server info and devices are built as flat label tuples. Library breakdowns
// are built as nested trees keyed by category, so a category with no items
// still appears and its old series are zeroed instead of left stale.
package snapshot

import (
	"strconv"

	"github.com/randomizedcoder/emby-exporter/internal/emby"
	"github.com/randomizedcoder/emby-exporter/internal/labeltree"
	"github.com/randomizedcoder/emby-exporter/internal/metrics"
)

// Metric names.
const (
	Info           = "emby_info"
	Devices        = "emby_devices"
	LibrarySize    = "emby_library_size"
	Genres         = "emby_genres"
	ProductionYear = "emby_productionyear"
	Played         = "emby_played"
	IsFavorite     = "emby_isfavorite"
)

var definitions = []metrics.Definition{
	{Name: Info, Help: "information about the emby server", Labels: []string{"server_name", "version", "local_address", "wan_address", "id", "operating_system"}},
	{Name: Devices, Labels: []string{"name", "id", "last_user_name", "last_user_id", "app_name", "app_version"}},
	{Name: LibrarySize, Labels: []string{"type"}},
	{Name: Genres, Labels: []string{"type", "genres"}},
	{Name: ProductionYear, Labels: []string{"type", "productionyear"}},
	{Name: Played, Labels: []string{"type"}},
	{Name: IsFavorite, Labels: []string{"type"}},
}

// Definitions returns every metric the builder produces, in publishing order.
func Definitions() []metrics.Definition {
	out := make([]metrics.Definition, len(definitions))
	for i, d := range definitions {
		d.Labels = append([]string(nil), d.Labels...)
		out[i] = d
	}
	return out
}

// Build derives one snapshot per metric from data.
func Build(data *emby.Data) map[string]labeltree.Snapshot {
	return map[string]labeltree.Snapshot{
		Info:           info(data.Info),
		Devices:        devices(data.Devices),
		LibrarySize:    perCategory(data.Library, func(items []emby.Item) float64 { return float64(len(items)) }),
		Genres:         breakdown(data.Library, genresOf),
		ProductionYear: breakdown(data.Library, yearOf),
		Played:         perCategory(data.Library, countIf(func(it emby.Item) bool { return it.UserData.Played })),
		IsFavorite:     perCategory(data.Library, countIf(func(it emby.Item) bool { return it.UserData.IsFavorite })),
	}
}

func info(si emby.SystemInfo) labeltree.Flat {
	return labeltree.Flat{
		labeltree.T(1, si.ServerName, si.Version, si.LocalAddress, si.WanAddress, si.ID, si.OperatingSystem),
	}
}

func devices(ds []emby.Device) labeltree.Flat {
	rows := make(labeltree.Flat, 0, len(ds))
	for _, d := range ds {
		rows = append(rows, labeltree.T(1, d.Name, d.ID, d.LastUserName, d.LastUserID, d.AppName, d.AppVersion))
	}
	return rows
}

// perCategory builds {category: value}.
func perCategory(lib map[string][]emby.Item, value func([]emby.Item) float64) *labeltree.Node {
	root := labeltree.NewTree()
	for cat, items := range lib {
		root.Set(cat, labeltree.Leaf(value(items)))
	}
	return root
}

// breakdown builds {category: {key: items carrying key}}. An item may count
// under several keys.
func breakdown(lib map[string][]emby.Item, keys func(emby.Item) []string) *labeltree.Node {
	root := labeltree.NewTree()
	for cat, items := range lib {
		counts := make(map[string]float64)
		for _, it := range items {
			for _, k := range keys(it) {
				counts[k]++
			}
		}
		branch := labeltree.NewTree()
		for k, n := range counts {
			branch.Set(k, labeltree.Leaf(n))
		}
		root.Set(cat, branch)
	}
	return root
}

func countIf(pred func(emby.Item) bool) func([]emby.Item) float64 {
	return func(items []emby.Item) float64 {
		var n float64
		for _, it := range items {
			if pred(it) {
				n++
			}
		}
		return n
	}
}

// genresOf returns the distinct genres of an item.
func genresOf(it emby.Item) []string {
	seen := make(map[string]struct{}, len(it.Genres))
	out := make([]string, 0, len(it.Genres))
	for _, g := range it.Genres {
		if g == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// yearOf skips items without a production year.
func yearOf(it emby.Item) []string {
	if it.ProductionYear <= 0 {
		return nil
	}
	return []string{strconv.Itoa(it.ProductionYear)}
}
