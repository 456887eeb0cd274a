package tagrequest

import (
	"time"

	"docent-tagalong/internal/domain"
)

// TagRequestModel 硬删除；(date, time_slot, new_docent_id) 唯一
type TagRequestModel struct {
	ID               int64       `gorm:"primaryKey;autoIncrement"`
	Date             domain.Date `gorm:"type:date;not null;uniqueIndex:uniq_tag_slot,priority:1;index:idx_tag_date"`
	TimeSlot         string      `gorm:"size:2;not null;uniqueIndex:uniq_tag_slot,priority:2"`
	NewDocentID      int64       `gorm:"not null;uniqueIndex:uniq_tag_slot,priority:3;index:idx_tag_new_docent"`
	Status           string      `gorm:"size:16;not null;default:requested"`
	SeasonedDocentID *int64      `gorm:"index:idx_tag_seasoned_docent"`
	Notes            string      `gorm:"size:500"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TagRequestModel) TableName() string { return "tag_requests" }

func (m TagRequestModel) ToDomain() domain.TagRequest {
	return domain.TagRequest{
		ID:               m.ID,
		Date:             m.Date,
		TimeSlot:         domain.TimeSlot(m.TimeSlot),
		Status:           domain.Status(m.Status),
		NewDocentID:      m.NewDocentID,
		SeasonedDocentID: m.SeasonedDocentID,
		Notes:            m.Notes,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func FromDomain(t domain.TagRequest) TagRequestModel {
	return TagRequestModel{
		ID:               t.ID,
		Date:             t.Date,
		TimeSlot:         string(t.TimeSlot),
		Status:           string(t.Status),
		NewDocentID:      t.NewDocentID,
		SeasonedDocentID: t.SeasonedDocentID,
		Notes:            t.Notes,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// Columns 是一次完整更新要写的列（不含 id / created_at）
func (m TagRequestModel) Columns() map[string]any {
	return map[string]any{
		"date":               m.Date,
		"time_slot":          m.TimeSlot,
		"status":             m.Status,
		"new_docent_id":      m.NewDocentID,
		"seasoned_docent_id": m.SeasonedDocentID,
		"notes":              m.Notes,
		"updated_at":         m.UpdatedAt,
	}
}
