package model

import "time"

// SavedSession is the stored metadata for a persisted session, as returned
// by listings. The message log itself is loaded separately when the session
// is opened.
type SavedSession struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Cwd          string    `json:"cwd"`
	Created      time.Time `json:"created"`
	Modified     time.Time `json:"modified"`
	MessageCount int       `json:"messageCount"`
	FirstMessage string    `json:"firstMessage,omitempty"`
}

// SessionRecord is a saved session together with its full message log.
type SessionRecord struct {
	SavedSession
	Messages []Message `json:"messages"`
}
