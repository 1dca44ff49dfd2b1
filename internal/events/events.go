// Package events normalizes raw listening-history export documents into a
// fixed event schema.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedInput is returned when an uploaded document is not valid JSON
// or is not an event object or array of event objects.
var ErrMalformedInput = errors.New("malformed input document")

// truthyToken is the only source value that normalizes to true. Export files
// encode booleans as the strings "TRUE"/"FALSE"; anything else, including
// real JSON booleans and absent fields, maps to false.
const truthyToken = "TRUE"

// Event is one normalized listening event. Every field has a defined
// default; a missing source field never fails normalization.
type Event struct {
	Timestamp        *time.Time `json:"ts"`
	Username         string     `json:"username"`
	Platform         string     `json:"platform"`
	MsPlayed         int64      `json:"ms_played"`
	ConnCountry      string     `json:"conn_country"`
	IPAddr           string     `json:"ip_addr_decrypted"`
	UserAgent        string     `json:"user_agent_decrypted"`
	TrackName        string     `json:"master_metadata_track_name"`
	ArtistName       string     `json:"master_metadata_album_artist_name"`
	AlbumName        string     `json:"master_metadata_album_album_name"`
	TrackURI         string     `json:"spotify_track_uri"`
	EpisodeName      string     `json:"episode_name"`
	EpisodeShowName  string     `json:"episode_show_name"`
	EpisodeURI       string     `json:"spotify_episode_uri"`
	ReasonStart      string     `json:"reason_start"`
	ReasonEnd        string     `json:"reason_end"`
	Shuffle          bool       `json:"shuffle"`
	Skipped          bool       `json:"skipped"`
	Offline          bool       `json:"offline"`
	OfflineTimestamp *time.Time `json:"offline_timestamp"`
	IncognitoMode    bool       `json:"incognito_mode"`
}

// ParseDocument parses one uploaded document into a sequence of normalized
// events. The document must be a single JSON object or an array of objects;
// anything else returns ErrMalformedInput. Missing or wrong-typed fields
// within an object take their defaults rather than failing the document.
func ParseDocument(data []byte) ([]Event, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	switch v := doc.(type) {
	case map[string]any:
		return []Event{normalize(v)}, nil
	case []any:
		evts := make([]Event, 0, len(v))
		for _, entry := range v {
			obj, ok := entry.(map[string]any)
			if !ok {
				// Lenient policy: a malformed row becomes a default row
				// rather than dropping the whole upload.
				obj = nil
			}
			evts = append(evts, normalize(obj))
		}
		return evts, nil
	default:
		return nil, fmt.Errorf("%w: expected object or array", ErrMalformedInput)
	}
}

// normalize maps one raw export row to an Event, defaulting every field.
func normalize(row map[string]any) Event {
	return Event{
		Timestamp:        timeField(row, "ts"),
		Username:         stringField(row, "username"),
		Platform:         stringField(row, "platform"),
		MsPlayed:         msField(row, "ms_played"),
		ConnCountry:      stringField(row, "conn_country"),
		IPAddr:           stringField(row, "ip_addr_decrypted"),
		UserAgent:        stringField(row, "user_agent_decrypted"),
		TrackName:        stringField(row, "master_metadata_track_name"),
		ArtistName:       stringField(row, "master_metadata_album_artist_name"),
		AlbumName:        stringField(row, "master_metadata_album_album_name"),
		TrackURI:         stringField(row, "spotify_track_uri"),
		EpisodeName:      stringField(row, "episode_name"),
		EpisodeShowName:  stringField(row, "episode_show_name"),
		EpisodeURI:       stringField(row, "spotify_episode_uri"),
		ReasonStart:      stringField(row, "reason_start"),
		ReasonEnd:        stringField(row, "reason_end"),
		Shuffle:          boolField(row, "shuffle"),
		Skipped:          boolField(row, "skipped"),
		Offline:          boolField(row, "offline"),
		OfflineTimestamp: timeField(row, "offline_timestamp"),
		IncognitoMode:    boolField(row, "incognito_mode"),
	}
}

func stringField(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}

// msField reads a play duration, defaulting to zero. Negative values are
// clamped since a duration cannot be negative.
func msField(row map[string]any, key string) int64 {
	f, ok := row[key].(float64)
	if !ok || f < 0 {
		return 0
	}
	return int64(f)
}

// boolField maps the export's tri-state flag to a bool. Only the exact
// token "TRUE" is truthy.
func boolField(row map[string]any, key string) bool {
	s, ok := row[key].(string)
	return ok && s == truthyToken
}

// timeField parses an RFC 3339 instant, using nil on absence or failure.
func timeField(row map[string]any, key string) *time.Time {
	s, ok := row[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
