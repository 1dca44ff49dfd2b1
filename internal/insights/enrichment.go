package insights

// Enrichment is the optional catalog-metadata payload attached to a
// Document when the external lookups succeed. Partial results are normal:
// identifiers whose batch failed are simply absent.
type Enrichment struct {
	Tracks  []TrackMeta  `json:"tracks"`
	Albums  []AlbumMeta  `json:"albums"`
	Artists []ArtistMeta `json:"artists"`
}

// TrackMeta is catalog metadata for one track.
type TrackMeta struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	AlbumID    string   `json:"album_id"`
	DurationMs int      `json:"duration_ms"`
	Popularity int      `json:"popularity"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// AlbumMeta is catalog metadata for one album.
type AlbumMeta struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	ImageURL    string   `json:"image_url,omitempty"`
}

// ArtistMeta is catalog metadata for one artist.
type ArtistMeta struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
	Followers  uint     `json:"followers"`
	ImageURL   string   `json:"image_url,omitempty"`
}
