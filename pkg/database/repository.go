package database

import (
	"time"

	"gorm.io/gorm"
)

// CallRepository handles call history database operations
type CallRepository struct {
	db *gorm.DB
}

// NewCallRepository creates a new call repository
func NewCallRepository(db *gorm.DB) *CallRepository {
	return &CallRepository{db: db}
}

// Create adds a new call record
func (r *CallRepository) Create(c *Call) error {
	return r.db.Create(c).Error
}

// GetRecent retrieves the most recent N calls
func (r *CallRepository) GetRecent(limit int) ([]Call, error) {
	var calls []Call
	err := r.db.Order("start_time DESC").Limit(limit).Find(&calls).Error
	return calls, err
}

// GetRecentPaginated retrieves calls with pagination, optionally restricted
// to one mode
func (r *CallRepository) GetRecentPaginated(mode string, page, perPage int) ([]Call, int64, error) {
	var calls []Call
	var total int64

	q := r.db.Model(&Call{})
	if mode != "" {
		q = q.Where("mode = ?", mode)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * perPage
	err := q.Order("start_time DESC").
		Offset(offset).
		Limit(perPage).
		Find(&calls).Error

	return calls, total, err
}

// GetBySource retrieves calls made by a source id or callsign
func (r *CallRepository) GetBySource(src string, limit int) ([]Call, error) {
	var calls []Call
	err := r.db.Where("src_id = ?", src).
		Order("start_time DESC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}

// GetByTimeRange retrieves calls within a time range
func (r *CallRepository) GetByTimeRange(start, end time.Time, limit int) ([]Call, error) {
	var calls []Call
	err := r.db.Where("start_time BETWEEN ? AND ?", start, end).
		Order("start_time DESC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}

// DeleteOlderThan deletes calls that started before the specified time
func (r *CallRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&Call{})
	return result.RowsAffected, result.Error
}
