// Package emby is a small client for the parts of the Emby REST API the
// exporter counts: server info, library items and devices.
package emby

// SystemInfo is the subset of /System/Info the exporter publishes.
type SystemInfo struct {
	ServerName      string `json:"ServerName"`
	Version         string `json:"Version"`
	LocalAddress    string `json:"LocalAddress"`
	WanAddress      string `json:"WanAddress"`
	ID              string `json:"Id"`
	OperatingSystem string `json:"OperatingSystem"`
}

// UserData holds the per-user state of an item.
type UserData struct {
	Played     bool `json:"Played"`
	IsFavorite bool `json:"IsFavorite"`
}

// Item is one library entry.
type Item struct {
	ID             string   `json:"Id"`
	Name           string   `json:"Name"`
	Type           string   `json:"Type"`
	Genres         []string `json:"Genres"`
	ProductionYear int      `json:"ProductionYear"`
	UserData       UserData `json:"UserData"`
}

// Device is one registered client device.
type Device struct {
	Name         string `json:"Name"`
	ID           string `json:"Id"`
	LastUserName string `json:"LastUserName"`
	LastUserID   string `json:"LastUserId"`
	AppName      string `json:"AppName"`
	AppVersion   string `json:"AppVersion"`
}

// itemsResponse is the paged envelope of /Items and /Devices.
type itemsResponse[T any] struct {
	Items            []T `json:"Items"`
	TotalRecordCount int `json:"TotalRecordCount"`
}

// Category maps an exporter type label to the Emby item type it counts.
type Category struct {
	Label    string // value of the "type" label, e.g. "movies"
	ItemType string // Emby IncludeItemTypes value, e.g. "Movie"
}

// DefaultCategories are always counted.
var DefaultCategories = []Category{
	{Label: "movies", ItemType: "Movie"},
	{Label: "series", ItemType: "Series"},
	{Label: "albums", ItemType: "MusicAlbum"},
	{Label: "artists", ItemType: "MusicArtist"},
}

// ExtendedCategories are large collections counted only on request.
var ExtendedCategories = []Category{
	{Label: "episodes", ItemType: "Episode"},
	{Label: "songs", ItemType: "Audio"},
}

// Categories returns the categories to fetch.
func Categories(extended bool) []Category {
	out := append([]Category(nil), DefaultCategories...)
	if extended {
		out = append(out, ExtendedCategories...)
	}
	return out
}

// Data is everything one poll fetched from the server.
type Data struct {
	Info    SystemInfo
	Library map[string][]Item // keyed by Category.Label
	Devices []Device
}
