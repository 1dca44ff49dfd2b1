package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/mkarlin/listening-insights/internal/insights"
)

// Batch limits imposed by the Spotify Web API.
const (
	trackBatchSize  = 50
	albumBatchSize  = 20
	artistBatchSize = 50
)

// requestsPerSecond caps the catalog request rate for one process.
const requestsPerSecond = 10

// ErrEnrichment is returned when enrichment cannot run at all for a
// session, e.g. the token refresh fails. It is non-fatal to the session:
// the insights document is still produced and cached without the payload.
var ErrEnrichment = errors.New("enrichment failed")

// catalogClient is the slice of the Spotify client the fetcher uses.
type catalogClient interface {
	GetTracks(ctx context.Context, ids []spotify.ID, opts ...spotify.RequestOption) ([]*spotify.FullTrack, error)
	GetAlbums(ctx context.Context, ids []spotify.ID, opts ...spotify.RequestOption) ([]*spotify.FullAlbum, error)
	GetArtists(ctx context.Context, ids ...spotify.ID) ([]*spotify.FullArtist, error)
}

// Fetcher fetches catalog metadata for the identifiers surfaced by
// aggregation. Fetches are best-effort per batch: a failed batch is logged
// and skipped, and its identifiers are simply absent from the payload.
type Fetcher struct {
	tokens    *tokenCache
	limiter   *rate.Limiter
	logger    *log.Logger
	newClient func(ctx context.Context, token *oauth2.Token) catalogClient
}

// NewFetcher creates a Fetcher holding a shared client-credentials
// configuration for the Spotify Web API.
func NewFetcher(clientID, clientSecret string, logger *log.Logger) *Fetcher {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &Fetcher{
		tokens:  newTokenCache(cfg),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
		newClient: func(ctx context.Context, token *oauth2.Token) catalogClient {
			return spotify.New(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)))
		},
	}
}

// Fetch retrieves catalog metadata for the referenced tracks, then for the
// albums and artists that appear both in the track responses and in the
// aggregated name sets. Returns ErrEnrichment when no token can be
// obtained; individual batch failures only shrink the payload.
func (f *Fetcher) Fetch(ctx context.Context, refs insights.CatalogRefs) (*insights.Enrichment, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrichment, err)
	}
	client := f.newClient(ctx, token)

	payload := &insights.Enrichment{
		Tracks:  []insights.TrackMeta{},
		Albums:  []insights.AlbumMeta{},
		Artists: []insights.ArtistMeta{},
	}

	albumIDs, artistIDs := f.fetchTracks(ctx, client, refs, payload)
	f.fetchAlbums(ctx, client, albumIDs, payload)
	f.fetchArtists(ctx, client, artistIDs, payload)

	return payload, nil
}

// fetchTracks fetches track metadata in batches and collects the album and
// artist IDs whose names the aggregation surfaced.
func (f *Fetcher) fetchTracks(ctx context.Context, client catalogClient, refs insights.CatalogRefs, payload *insights.Enrichment) (albumIDs, artistIDs []spotify.ID) {
	albumSeen := make(map[spotify.ID]bool)
	artistSeen := make(map[spotify.ID]bool)

	for _, chunk := range chunkIDs(refs.TrackIDs, trackBatchSize) {
		if err := f.limiter.Wait(ctx); err != nil {
			return albumIDs, artistIDs
		}
		tracks, err := client.GetTracks(ctx, chunk)
		if err != nil {
			f.logger.Warn("track batch fetch failed", "count", len(chunk), "err", err)
			continue
		}

		for _, track := range tracks {
			if track == nil {
				continue
			}
			payload.Tracks = append(payload.Tracks, convertTrack(track))

			if refs.AlbumNames[track.Album.Name] && !albumSeen[track.Album.ID] {
				albumSeen[track.Album.ID] = true
				albumIDs = append(albumIDs, track.Album.ID)
			}
			for _, artist := range track.Artists {
				if refs.ArtistNames[artist.Name] && !artistSeen[artist.ID] {
					artistSeen[artist.ID] = true
					artistIDs = append(artistIDs, artist.ID)
				}
			}
		}
	}
	return albumIDs, artistIDs
}

func (f *Fetcher) fetchAlbums(ctx context.Context, client catalogClient, ids []spotify.ID, payload *insights.Enrichment) {
	for _, chunk := range chunkIDs2(ids, albumBatchSize) {
		if err := f.limiter.Wait(ctx); err != nil {
			return
		}
		albums, err := client.GetAlbums(ctx, chunk)
		if err != nil {
			f.logger.Warn("album batch fetch failed", "count", len(chunk), "err", err)
			continue
		}
		for _, album := range albums {
			if album != nil {
				payload.Albums = append(payload.Albums, convertAlbum(album))
			}
		}
	}
}

func (f *Fetcher) fetchArtists(ctx context.Context, client catalogClient, ids []spotify.ID, payload *insights.Enrichment) {
	for _, chunk := range chunkIDs2(ids, artistBatchSize) {
		if err := f.limiter.Wait(ctx); err != nil {
			return
		}
		artists, err := client.GetArtists(ctx, chunk...)
		if err != nil {
			f.logger.Warn("artist batch fetch failed", "count", len(chunk), "err", err)
			continue
		}
		for _, artist := range artists {
			if artist != nil {
				payload.Artists = append(payload.Artists, convertArtist(artist))
			}
		}
	}
}

// chunkIDs splits string IDs into spotify.ID batches of at most size.
func chunkIDs(ids []string, size int) [][]spotify.ID {
	converted := make([]spotify.ID, len(ids))
	for i, id := range ids {
		converted[i] = spotify.ID(id)
	}
	return chunkIDs2(converted, size)
}

// chunkIDs2 splits IDs into batches of at most size.
func chunkIDs2(ids []spotify.ID, size int) [][]spotify.ID {
	var chunks [][]spotify.ID
	for i := 0; i < len(ids); i += size {
		chunks = append(chunks, ids[i:min(i+size, len(ids))])
	}
	return chunks
}

func convertTrack(track *spotify.FullTrack) insights.TrackMeta {
	artists := make([]string, len(track.Artists))
	for i, a := range track.Artists {
		artists[i] = a.Name
	}
	meta := insights.TrackMeta{
		ID:         track.ID.String(),
		Name:       track.Name,
		Artists:    artists,
		Album:      track.Album.Name,
		AlbumID:    track.Album.ID.String(),
		DurationMs: int(track.Duration),
		Popularity: int(track.Popularity),
	}
	if len(track.Album.Images) > 0 {
		meta.ImageURL = track.Album.Images[0].URL
	}
	return meta
}

func convertAlbum(album *spotify.FullAlbum) insights.AlbumMeta {
	artists := make([]string, len(album.Artists))
	for i, a := range album.Artists {
		artists[i] = a.Name
	}
	meta := insights.AlbumMeta{
		ID:          album.ID.String(),
		Name:        album.Name,
		Artists:     artists,
		ReleaseDate: album.ReleaseDate,
		TotalTracks: int(album.Tracks.Total),
	}
	if len(album.Images) > 0 {
		meta.ImageURL = album.Images[0].URL
	}
	return meta
}

func convertArtist(artist *spotify.FullArtist) insights.ArtistMeta {
	meta := insights.ArtistMeta{
		ID:         artist.ID.String(),
		Name:       artist.Name,
		Genres:     artist.Genres,
		Popularity: int(artist.Popularity),
		Followers:  uint(artist.Followers.Count),
	}
	if len(artist.Images) > 0 {
		meta.ImageURL = artist.Images[0].URL
	}
	return meta
}
