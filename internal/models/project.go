package models

import "time"

// CachedProject is a local copy of a remote sketch project, kept so the
// project list survives restarts and brief collaborator outages. Cleared on
// sign-out.
type CachedProject struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:128;not null"`
	Code     string `gorm:"type:text"`
	IsPublic bool   `gorm:"default:true"`
	RepoRef  string `gorm:"size:512"`
	SyncedAt time.Time
}
