package database

import (
	"time"

	"gorm.io/gorm"
)

// Call is one finished call relayed by a reflector
type Call struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Mode      string    `gorm:"index;size:8;not null" json:"mode"`
	SrcID     string    `gorm:"index;size:20" json:"src_id"`
	DstID     string    `gorm:"index;size:20" json:"dst_id"`
	Peer      string    `gorm:"size:20" json:"peer"`
	StreamID  uint32    `gorm:"index" json:"stream_id"`
	Duration  float64   `gorm:"not null" json:"duration"` // Duration in seconds
	Frames    int       `gorm:"default:0" json:"frames"`
	StartTime time.Time `gorm:"index;not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Call
func (Call) TableName() string {
	return "calls"
}

// BeforeCreate hook to ensure StartTime and EndTime are set
func (c *Call) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.EndTime.IsZero() {
		c.EndTime = now
	}
	if c.StartTime.IsZero() {
		c.StartTime = c.EndTime.Add(-time.Duration(c.Duration * float64(time.Second)))
	}
	return nil
}
