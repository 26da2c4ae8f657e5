package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting stores runtime switches, e.g. whether eager discovery runs.
type SystemSetting struct {
	Key string `json:"key" gorm:"primaryKey;type:varchar(120)"`

	// JSON value, true/false for switches.
	Value datatypes.JSON `json:"value" gorm:"not null"`

	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime;index"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
