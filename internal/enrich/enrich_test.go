package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/mkarlin/listening-insights/internal/insights"
)

type fakeCatalog struct {
	trackCalls  [][]spotify.ID
	albumCalls  [][]spotify.ID
	artistCalls [][]spotify.ID

	trackErr  error
	tracks    map[spotify.ID]*spotify.FullTrack
	albumErr  error
	artistErr error
}

func (f *fakeCatalog) GetTracks(ctx context.Context, ids []spotify.ID, opts ...spotify.RequestOption) ([]*spotify.FullTrack, error) {
	f.trackCalls = append(f.trackCalls, ids)
	if f.trackErr != nil {
		return nil, f.trackErr
	}
	out := make([]*spotify.FullTrack, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.tracks[id])
	}
	return out, nil
}

func (f *fakeCatalog) GetAlbums(ctx context.Context, ids []spotify.ID, opts ...spotify.RequestOption) ([]*spotify.FullAlbum, error) {
	f.albumCalls = append(f.albumCalls, ids)
	if f.albumErr != nil {
		return nil, f.albumErr
	}
	out := make([]*spotify.FullAlbum, 0, len(ids))
	for _, id := range ids {
		album := &spotify.FullAlbum{}
		album.ID = id
		out = append(out, album)
	}
	return out, nil
}

func (f *fakeCatalog) GetArtists(ctx context.Context, ids ...spotify.ID) ([]*spotify.FullArtist, error) {
	f.artistCalls = append(f.artistCalls, ids)
	if f.artistErr != nil {
		return nil, f.artistErr
	}
	out := make([]*spotify.FullArtist, 0, len(ids))
	for _, id := range ids {
		artist := &spotify.FullArtist{}
		artist.ID = id
		out = append(out, artist)
	}
	return out, nil
}

func newTestFetcher(catalog *fakeCatalog) *Fetcher {
	return &Fetcher{
		tokens: &tokenCache{
			fetch: func(ctx context.Context) (*oauth2.Token, error) {
				return &oauth2.Token{AccessToken: "tok"}, nil
			},
			now: time.Now,
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  log.New(io.Discard),
		newClient: func(ctx context.Context, token *oauth2.Token) catalogClient {
			return catalog
		},
	}
}

func testTrack(id, name, albumName, albumID string, artists ...string) *spotify.FullTrack {
	track := &spotify.FullTrack{}
	track.ID = spotify.ID(id)
	track.Name = name
	track.Album.Name = albumName
	track.Album.ID = spotify.ID(albumID)
	for _, a := range artists {
		track.Artists = append(track.Artists, spotify.SimpleArtist{Name: a, ID: spotify.ID("artist-" + a)})
	}
	return track
}

func manyIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("track-%03d-xxxxxxxxxxxxx", i)
	}
	return ids
}

func TestFetchBatchSizes(t *testing.T) {
	catalog := &fakeCatalog{tracks: map[spotify.ID]*spotify.FullTrack{}}
	fetcher := newTestFetcher(catalog)

	refs := insights.CatalogRefs{
		TrackIDs:    manyIDs(120),
		AlbumNames:  map[string]bool{},
		ArtistNames: map[string]bool{},
	}

	if _, err := fetcher.Fetch(context.Background(), refs); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	wantSizes := []int{50, 50, 20}
	if len(catalog.trackCalls) != len(wantSizes) {
		t.Fatalf("track batches = %d, want %d", len(catalog.trackCalls), len(wantSizes))
	}
	for i, call := range catalog.trackCalls {
		if len(call) != wantSizes[i] {
			t.Errorf("track batch %d size = %d, want %d", i, len(call), wantSizes[i])
		}
	}
}

func TestFetchResolvesAlbumsAndArtistsFromTracks(t *testing.T) {
	catalog := &fakeCatalog{
		tracks: map[spotify.ID]*spotify.FullTrack{
			"id-aaaaaaaaaaaaaaaaaaa": testTrack("id-aaaaaaaaaaaaaaaaaaa", "Airbag", "OK Computer", "album-okc", "Radiohead"),
			"id-bbbbbbbbbbbbbbbbbbb": testTrack("id-bbbbbbbbbbbbbbbbbbb", "Glory Box", "Dummy", "album-dummy", "Portishead"),
		},
	}
	fetcher := newTestFetcher(catalog)

	refs := insights.CatalogRefs{
		TrackIDs: []string{"id-aaaaaaaaaaaaaaaaaaa", "id-bbbbbbbbbbbbbbbbbbb"},
		// Only one album and one artist were surfaced by aggregation.
		AlbumNames:  map[string]bool{"OK Computer": true},
		ArtistNames: map[string]bool{"Portishead": true},
	}

	payload, err := fetcher.Fetch(context.Background(), refs)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(payload.Tracks) != 2 {
		t.Errorf("tracks = %d, want 2", len(payload.Tracks))
	}
	if len(catalog.albumCalls) != 1 || len(catalog.albumCalls[0]) != 1 || catalog.albumCalls[0][0] != "album-okc" {
		t.Errorf("album calls = %v, want one call for album-okc", catalog.albumCalls)
	}
	if len(catalog.artistCalls) != 1 || len(catalog.artistCalls[0]) != 1 || catalog.artistCalls[0][0] != "artist-Portishead" {
		t.Errorf("artist calls = %v, want one call for artist-Portishead", catalog.artistCalls)
	}
}

func TestFetchSkipsFailedBatches(t *testing.T) {
	catalog := &fakeCatalog{
		tracks:    map[spotify.ID]*spotify.FullTrack{},
		trackErr:  errors.New("upstream 502"),
		albumErr:  errors.New("upstream 502"),
		artistErr: errors.New("upstream 502"),
	}
	fetcher := newTestFetcher(catalog)

	refs := insights.CatalogRefs{
		TrackIDs:    manyIDs(3),
		AlbumNames:  map[string]bool{},
		ArtistNames: map[string]bool{},
	}

	payload, err := fetcher.Fetch(context.Background(), refs)
	if err != nil {
		t.Fatalf("Fetch() error = %v, want best-effort success", err)
	}
	if len(payload.Tracks) != 0 || len(payload.Albums) != 0 || len(payload.Artists) != 0 {
		t.Errorf("payload should be empty after failed batches: %+v", payload)
	}
}

func TestFetchTokenFailureIsEnrichmentError(t *testing.T) {
	fetcher := newTestFetcher(&fakeCatalog{})
	fetcher.tokens = &tokenCache{
		fetch: func(ctx context.Context) (*oauth2.Token, error) {
			return nil, errors.New("token endpoint unavailable")
		},
		now: time.Now,
	}

	_, err := fetcher.Fetch(context.Background(), insights.CatalogRefs{})
	if !errors.Is(err, ErrEnrichment) {
		t.Errorf("Fetch() error = %v, want ErrEnrichment", err)
	}
}

func TestConvertTrack(t *testing.T) {
	track := testTrack("id-ccccccccccccccccccc", "Roads", "Dummy", "album-dummy", "Portishead", "Beth Gibbons")
	track.Duration = 303000
	track.Popularity = 71
	track.Album.Images = []spotify.Image{{URL: "https://img.example/cover.jpg"}}

	meta := convertTrack(track)

	if meta.ID != "id-ccccccccccccccccccc" || meta.Name != "Roads" {
		t.Errorf("meta = %+v", meta)
	}
	if len(meta.Artists) != 2 || meta.Artists[0] != "Portishead" || meta.Artists[1] != "Beth Gibbons" {
		t.Errorf("Artists = %v", meta.Artists)
	}
	if meta.Album != "Dummy" || meta.AlbumID != "album-dummy" {
		t.Errorf("Album = %q AlbumID = %q", meta.Album, meta.AlbumID)
	}
	if meta.DurationMs != 303000 || meta.Popularity != 71 {
		t.Errorf("DurationMs = %d Popularity = %d", meta.DurationMs, meta.Popularity)
	}
	if meta.ImageURL != "https://img.example/cover.jpg" {
		t.Errorf("ImageURL = %q", meta.ImageURL)
	}
}

func TestChunkIDs(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		size      int
		wantSizes []int
	}{
		{"empty", 0, 50, nil},
		{"under one batch", 10, 50, []int{10}},
		{"exact", 50, 50, []int{50}},
		{"two and remainder", 120, 50, []int{50, 50, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkIDs(manyIDs(tt.total), tt.size)
			if len(chunks) != len(tt.wantSizes) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tt.wantSizes))
			}
			for i, c := range chunks {
				if len(c) != tt.wantSizes[i] {
					t.Errorf("chunk %d size = %d, want %d", i, len(c), tt.wantSizes[i])
				}
			}
		})
	}
}
