package models

import "time"

// SyncEvent is one journal row describing what a sync operation did to a
// single project.
type SyncEvent struct {
	ID          int64
	Operation   string
	ProjectID   string
	ProjectName string
	Action      string
	LocalTS     int64
	RemoteTS    int64
	Files       int
	Detail      string
	OccurredAt  time.Time
}
