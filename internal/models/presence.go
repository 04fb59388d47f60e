package models

import "time"

// PresenceRecord is the last known state of a user. Records are never
// deleted; an offline record keeps its LastSeen.
type PresenceRecord struct {
	UserID       string    `json:"userId"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	LastActivity time.Time `json:"lastActivity"`
}
