// Package insights defines the aggregated listening-insights document and
// its result-set types.
package insights

import (
	"strings"
	"time"
)

// minURILen guards against junk identifiers; real Spotify IDs are 22
// characters.
const minURILen = 10

// ArtistPlays ranks an artist by play count.
type ArtistPlays struct {
	Artist     string `json:"artist"`
	TotalPlays int64  `json:"total_plays"`
}

// AlbumPlays ranks an album by play count.
type AlbumPlays struct {
	Album      string `json:"album"`
	TotalPlays int64  `json:"total_plays"`
}

// TrackPlays ranks a track by play count, carrying the distinct content
// identifiers seen for the track.
type TrackPlays struct {
	Track      string   `json:"track"`
	TotalPlays int64    `json:"total_plays"`
	TrackURIs  []string `json:"track_uris"`
}

// ArtistMinutes ranks an artist by minutes played.
type ArtistMinutes struct {
	Artist        string  `json:"artist"`
	MinutesPlayed float64 `json:"minutes_played"`
}

// AlbumMinutes ranks an album by minutes played.
type AlbumMinutes struct {
	Album         string  `json:"album"`
	MinutesPlayed float64 `json:"minutes_played"`
}

// TrackMinutes ranks a track by minutes played.
type TrackMinutes struct {
	Track         string   `json:"track"`
	MinutesPlayed float64  `json:"minutes_played"`
	TrackURIs     []string `json:"track_uris"`
}

// ArtistYearPlays ranks an artist within one calendar year by play count.
type ArtistYearPlays struct {
	Artist     string `json:"artist"`
	Year       int    `json:"year"`
	TotalPlays int64  `json:"total_plays"`
}

// ArtistYearMinutes ranks an artist within one calendar year by minutes.
type ArtistYearMinutes struct {
	Artist        string  `json:"artist"`
	Year          int     `json:"year"`
	MinutesPlayed float64 `json:"minutes_played"`
}

// TrackMonthPlays ranks a track within one year-month by play count.
type TrackMonthPlays struct {
	Track      string   `json:"track"`
	Year       int      `json:"year"`
	Month      int      `json:"month"`
	TotalPlays int64    `json:"total_plays"`
	TrackURIs  []string `json:"track_uris"`
}

// TrackMonthMinutes ranks a track within one year-month by minutes.
type TrackMonthMinutes struct {
	Track         string   `json:"track"`
	Year          int      `json:"year"`
	Month         int      `json:"month"`
	MinutesPlayed float64  `json:"minutes_played"`
	TrackURIs     []string `json:"track_uris"`
}

// DayOfWeekMinutes is listening time for one day of the week (0 = Sunday).
type DayOfWeekMinutes struct {
	DayOfWeek     int     `json:"day_of_week"`
	MinutesPlayed float64 `json:"minutes_played"`
}

// HourMinutes is listening time for one hour of the day.
type HourMinutes struct {
	HourOfDay     int     `json:"hour_of_day"`
	MinutesPlayed float64 `json:"minutes_played"`
}

// Summary holds whole-workspace basics.
type Summary struct {
	TotalRecords int64      `json:"total_records"`
	UniqueUsers  int64      `json:"unique_users"`
	AvgPlayTime  float64    `json:"avg_play_time"`
	FirstPlay    *time.Time `json:"first_play"`
	LastPlay     *time.Time `json:"last_play"`
}

// Document is one user's aggregated listening insights. All result sets are
// present, possibly empty; Enrichment is attached only when catalog lookups
// succeeded.
type Document struct {
	TopArtistsByPlayCount             []ArtistPlays       `json:"topArtistsByPlayCount"`
	TopAlbumsByPlayCount              []AlbumPlays        `json:"topAlbumsByPlayCount"`
	TopTracksByPlayCount              []TrackPlays        `json:"topTracksByPlayCount"`
	TopArtistsByMinutesPlayed         []ArtistMinutes     `json:"topArtistsByMinutesPlayed"`
	TopAlbumsByMinutesPlayed          []AlbumMinutes      `json:"topAlbumsByMinutesPlayed"`
	TopTracksByMinutesPlayed          []TrackMinutes      `json:"topTracksByMinutesPlayed"`
	TopArtistsByYear                  []ArtistYearPlays   `json:"topArtistsByYear"`
	TopArtistsByYearAndMinutesPlayed  []ArtistYearMinutes `json:"topArtistsByYearAndMinutesPlayed"`
	TopTracksByYearMonthPlayCount     []TrackMonthPlays   `json:"topTracksByYearMonthPlayCount"`
	TopTracksByYearMonthMinutesPlayed []TrackMonthMinutes `json:"topTracksByYearMonthMinutesPlayed"`
	ListeningTimeByDayOfWeek          []DayOfWeekMinutes  `json:"listeningTimeByDayOfWeek"`
	ListeningTimeByHourOfDay          []HourMinutes       `json:"listeningTimeByHourOfDay"`
	BasicInsights                     Summary             `json:"basicInsights"`
	Enrichment                        *Enrichment         `json:"enrichment,omitempty"`
}

// NewDocument returns a Document with every result set initialized to an
// empty, non-nil slice so that a zero-row workspace still serializes with
// all sets present.
func NewDocument() *Document {
	return &Document{
		TopArtistsByPlayCount:             []ArtistPlays{},
		TopAlbumsByPlayCount:              []AlbumPlays{},
		TopTracksByPlayCount:              []TrackPlays{},
		TopArtistsByMinutesPlayed:         []ArtistMinutes{},
		TopAlbumsByMinutesPlayed:          []AlbumMinutes{},
		TopTracksByMinutesPlayed:          []TrackMinutes{},
		TopArtistsByYear:                  []ArtistYearPlays{},
		TopArtistsByYearAndMinutesPlayed:  []ArtistYearMinutes{},
		TopTracksByYearMonthPlayCount:     []TrackMonthPlays{},
		TopTracksByYearMonthMinutesPlayed: []TrackMonthMinutes{},
		ListeningTimeByDayOfWeek:          []DayOfWeekMinutes{},
		ListeningTimeByHourOfDay:          []HourMinutes{},
	}
}

// CatalogRefs are the distinct content identifiers surfaced by a document's
// ranked result sets, used to drive catalog enrichment.
type CatalogRefs struct {
	TrackIDs    []string
	AlbumNames  map[string]bool
	ArtistNames map[string]bool
}

// CollectRefs walks the ranked result sets of doc and gathers the distinct
// track IDs plus the album and artist name sets. Track URIs of the form
// "spotify:track:<id>" are reduced to their ID; implausibly short IDs are
// dropped.
func CollectRefs(doc *Document) CatalogRefs {
	refs := CatalogRefs{
		AlbumNames:  make(map[string]bool),
		ArtistNames: make(map[string]bool),
	}
	seen := make(map[string]bool)

	addURI := func(uri string) {
		id := trackIDFromURI(uri)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		refs.TrackIDs = append(refs.TrackIDs, id)
	}

	for _, r := range doc.TopTracksByPlayCount {
		for _, uri := range r.TrackURIs {
			addURI(uri)
		}
	}
	for _, r := range doc.TopTracksByMinutesPlayed {
		for _, uri := range r.TrackURIs {
			addURI(uri)
		}
	}
	for _, r := range doc.TopTracksByYearMonthPlayCount {
		for _, uri := range r.TrackURIs {
			addURI(uri)
		}
	}
	for _, r := range doc.TopTracksByYearMonthMinutesPlayed {
		for _, uri := range r.TrackURIs {
			addURI(uri)
		}
	}

	for _, r := range doc.TopAlbumsByPlayCount {
		if r.Album != "" {
			refs.AlbumNames[r.Album] = true
		}
	}
	for _, r := range doc.TopAlbumsByMinutesPlayed {
		if r.Album != "" {
			refs.AlbumNames[r.Album] = true
		}
	}

	for _, r := range doc.TopArtistsByPlayCount {
		if r.Artist != "" {
			refs.ArtistNames[r.Artist] = true
		}
	}
	for _, r := range doc.TopArtistsByMinutesPlayed {
		if r.Artist != "" {
			refs.ArtistNames[r.Artist] = true
		}
	}
	for _, r := range doc.TopArtistsByYear {
		if r.Artist != "" {
			refs.ArtistNames[r.Artist] = true
		}
	}
	for _, r := range doc.TopArtistsByYearAndMinutesPlayed {
		if r.Artist != "" {
			refs.ArtistNames[r.Artist] = true
		}
	}

	return refs
}

// trackIDFromURI extracts the ID from a "spotify:track:<id>" URI. Returns ""
// for URIs that do not carry a plausible ID.
func trackIDFromURI(uri string) string {
	parts := strings.Split(uri, ":")
	id := parts[len(parts)-1]
	if len(id) <= minURILen {
		return ""
	}
	return id
}
