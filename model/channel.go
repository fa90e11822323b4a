package model

// Channel is the upstream channel with the id of its uploads playlist.
type Channel struct {
	ID              string
	UploadsPlaylist string
}

// Playlist carries the change token (ETag) of an upstream playlist.
type Playlist struct {
	ID   string
	ETag string
}

// PlaylistPage is one page of video references of a playlist.
type PlaylistPage struct {
	VideoIDs      []string
	NextPageToken string
}

// HasNext reports whether the upstream has another page after this one.
func (p PlaylistPage) HasNext() bool { return p.NextPageToken != "" }
