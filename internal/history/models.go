package history

import "time"

// Build is one successful bundle run.
type Build struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	BuildID     string    `gorm:"uniqueIndex;size:36;not null" json:"build_id"`
	Environment string    `gorm:"index;not null" json:"environment"`
	DurationMS  int64     `json:"duration_ms"`
	TotalSize   int64     `json:"total_size"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`

	Files []BuildFile `gorm:"foreignKey:BuildID;references:BuildID;constraint:OnDelete:CASCADE" json:"files,omitempty"`
}

// BuildFile is one measured asset of a build.
type BuildFile struct {
	ID            uint   `gorm:"primarykey" json:"-"`
	BuildID       string `gorm:"index;size:36;not null" json:"build_id"`
	LogicalPath   string `gorm:"not null" json:"logical_path"`
	PublishedPath string `gorm:"not null" json:"published_path"`
	Size          int64  `json:"size"`
	GzipSize      int64  `json:"gzip_size"`
}
