package domain

import "time"

const (
	SettingMaintenanceEnabled = "maintenance_enabled"
	SettingMaintenanceEndTime = "maintenance_end_time"
)

type Setting struct {
	Key       string    `gorm:"column:name;primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }
