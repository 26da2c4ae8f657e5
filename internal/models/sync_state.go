package models

import (
	"time"

	"gorm.io/datatypes"
)

type SyncRunStatus string

const (
	SyncIdle      SyncRunStatus = "idle"
	SyncRunning   SyncRunStatus = "running"
	SyncCompleted SyncRunStatus = "completed"
	SyncAborted   SyncRunStatus = "aborted"
)

// SyncCheckpoint is the progress of one batch run.
type SyncCheckpoint struct {
	ProcessedCount int `json:"processed_count"`
	UpdatedCount   int `json:"updated_count"`
	SkippedCount   int `json:"skipped_count"`
	FailedCount    int `json:"failed_count"`
}

type SyncState struct {
	Scope          string         `json:"scope" gorm:"primaryKey;type:text;comment:sync scope"`
	Status         SyncRunStatus  `json:"status" gorm:"type:text;not null;default:'idle';comment:last known run state"`
	ProcessedCount int            `json:"processed_count" gorm:"not null;default:0"`
	UpdatedCount   int            `json:"updated_count" gorm:"not null;default:0"`
	SkippedCount   int            `json:"skipped_count" gorm:"not null;default:0"`
	FailedCount    int            `json:"failed_count" gorm:"not null;default:0"`
	LastCheckpoint *time.Time     `json:"last_checkpoint_at,omitempty" gorm:"comment:last snapshot write"`
	LastSuccessAt  *time.Time     `json:"last_success_at,omitempty" gorm:"comment:last completed run"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty" gorm:"comment:last run start"`
	LastError      *string        `json:"last_error,omitempty" gorm:"type:text;comment:last fatal error"`
	StatsJSON      datatypes.JSON `json:"stats,omitempty" gorm:"comment:per-run stats"`
}

func (SyncState) TableName() string {
	return "sync_state"
}

func (s *SyncState) Apply(cp SyncCheckpoint) {
	s.ProcessedCount = cp.ProcessedCount
	s.UpdatedCount = cp.UpdatedCount
	s.SkippedCount = cp.SkippedCount
	s.FailedCount = cp.FailedCount
}
