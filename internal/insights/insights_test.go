package insights

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNewDocumentAllSetsPresent(t *testing.T) {
	doc := NewDocument()

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshaling empty document: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}

	sets := []string{
		"topArtistsByPlayCount", "topAlbumsByPlayCount", "topTracksByPlayCount",
		"topArtistsByMinutesPlayed", "topAlbumsByMinutesPlayed", "topTracksByMinutesPlayed",
		"topArtistsByYear", "topArtistsByYearAndMinutesPlayed",
		"topTracksByYearMonthPlayCount", "topTracksByYearMonthMinutesPlayed",
		"listeningTimeByDayOfWeek", "listeningTimeByHourOfDay",
	}
	for _, name := range sets {
		raw, ok := decoded[name]
		if !ok {
			t.Errorf("result set %q missing from empty document", name)
			continue
		}
		if string(raw) != "[]" {
			t.Errorf("result set %q = %s, want []", name, raw)
		}
	}

	if _, ok := decoded["enrichment"]; ok {
		t.Error("enrichment should be omitted when absent")
	}
	if _, ok := decoded["basicInsights"]; !ok {
		t.Error("basicInsights missing")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	first := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := NewDocument()
	doc.TopTracksByPlayCount = []TrackPlays{
		{Track: "A", TotalPlays: 2, TrackURIs: []string{"spotify:track:4uLU6hMCjMI75M1A2tKUQC"}},
		{Track: "B", TotalPlays: 1, TrackURIs: []string{}},
	}
	doc.ListeningTimeByHourOfDay = []HourMinutes{{HourOfDay: 23, MinutesPlayed: 12.5}}
	doc.BasicInsights = Summary{TotalRecords: 3, UniqueUsers: 1, AvgPlayTime: 1166.6, FirstPlay: &first, LastPlay: &first}
	doc.Enrichment = &Enrichment{
		Tracks: []TrackMeta{{ID: "4uLU6hMCjMI75M1A2tKUQC", Name: "A", Artists: []string{"X"}}},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Document
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(&got, doc) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", &got, doc)
	}
}

func TestCollectRefs(t *testing.T) {
	doc := NewDocument()
	doc.TopTracksByPlayCount = []TrackPlays{
		{Track: "A", TrackURIs: []string{"spotify:track:4uLU6hMCjMI75M1A2tKUQC", "spotify:track:short"}},
	}
	doc.TopTracksByMinutesPlayed = []TrackMinutes{
		// Duplicate of the play-count URI plus one new ID.
		{Track: "A", TrackURIs: []string{"spotify:track:4uLU6hMCjMI75M1A2tKUQC", "spotify:track:1301WleyT98MSxVHPZCA6M"}},
	}
	doc.TopAlbumsByPlayCount = []AlbumPlays{{Album: "OK Computer"}, {Album: ""}}
	doc.TopArtistsByPlayCount = []ArtistPlays{{Artist: "Radiohead"}}
	doc.TopArtistsByYear = []ArtistYearPlays{{Artist: "Portishead", Year: 2019}}

	refs := CollectRefs(doc)

	wantIDs := []string{"4uLU6hMCjMI75M1A2tKUQC", "1301WleyT98MSxVHPZCA6M"}
	if !reflect.DeepEqual(refs.TrackIDs, wantIDs) {
		t.Errorf("TrackIDs = %v, want %v", refs.TrackIDs, wantIDs)
	}
	if len(refs.AlbumNames) != 1 || !refs.AlbumNames["OK Computer"] {
		t.Errorf("AlbumNames = %v", refs.AlbumNames)
	}
	if len(refs.ArtistNames) != 2 || !refs.ArtistNames["Radiohead"] || !refs.ArtistNames["Portishead"] {
		t.Errorf("ArtistNames = %v", refs.ArtistNames)
	}
}

func TestCollectRefsEmptyDocument(t *testing.T) {
	refs := CollectRefs(NewDocument())
	if len(refs.TrackIDs) != 0 || len(refs.AlbumNames) != 0 || len(refs.ArtistNames) != 0 {
		t.Errorf("expected empty refs, got %+v", refs)
	}
}

func TestTrackIDFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"spotify:track:4uLU6hMCjMI75M1A2tKUQC", "4uLU6hMCjMI75M1A2tKUQC"},
		{"spotify:track:short", ""},
		{"", ""},
		{"4uLU6hMCjMI75M1A2tKUQC", "4uLU6hMCjMI75M1A2tKUQC"},
	}
	for _, tt := range tests {
		name := tt.uri
		if name == "" {
			name = "empty"
		}
		t.Run(strings.ReplaceAll(name, ":", "_"), func(t *testing.T) {
			if got := trackIDFromURI(tt.uri); got != tt.want {
				t.Errorf("trackIDFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}
