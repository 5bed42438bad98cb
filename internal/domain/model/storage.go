package model

import "time"

// StorageEvent describes a mutation of a key/value area, seen by every other
// context of the same origin. Key is nil when the whole area was cleared.
// NewValue is nil when the key was removed.
type StorageEvent struct {
	ID        string    `json:"id"`
	Area      string    `json:"area"`
	Namespace string    `json:"namespace,omitempty"`
	Key       *string   `json:"key"`
	NewValue  *string   `json:"newValue"`
	OldValue  *string   `json:"oldValue"`
	Origin    string    `json:"origin"`
	At        time.Time `json:"at"`
}

// KeyString returns the key or "" for a clear event.
func (e StorageEvent) KeyString() string {
	if e.Key == nil {
		return ""
	}
	return *e.Key
}
