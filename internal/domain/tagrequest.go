package domain

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

const MaxNotesLength = 500

type TagRequest struct {
	ID               int64     `json:"id"`
	Date             Date      `json:"date"`
	TimeSlot         TimeSlot  `json:"timeSlot"`
	Status           Status    `json:"status"`
	NewDocentID      int64     `json:"newDocentId"`
	SeasonedDocentID *int64    `json:"seasonedDocentId"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (t TagRequest) Slot() Slot { return Slot{Date: t.Date, TimeSlot: t.TimeSlot} }

// SlotKey 唯一约束 (date, timeSlot, newDocentId)
func (t TagRequest) SlotKey() string {
	return fmt.Sprintf("%s/%s/%d", t.Date, t.TimeSlot, t.NewDocentID)
}

func (t TagRequest) FilledBy(userID int64) bool {
	return t.SeasonedDocentID != nil && *t.SeasonedDocentID == userID
}

// Validate 检查记录级不变量
func (t TagRequest) Validate() error {
	switch {
	case t.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	case !t.TimeSlot.Valid():
		return fmt.Errorf("%w: timeSlot %q must be AM or PM", ErrInvalidInput, t.TimeSlot)
	case t.NewDocentID <= 0:
		return fmt.Errorf("%w: newDocentId is required", ErrInvalidInput)
	case utf8.RuneCountInString(t.Notes) > MaxNotesLength:
		return fmt.Errorf("%w: notes longer than %d characters", ErrInvalidInput, MaxNotesLength)
	}
	switch t.Status {
	case StatusRequested:
		if t.SeasonedDocentID != nil {
			return fmt.Errorf("%w: a requested tag cannot have a seasoned docent", ErrInvalidInput)
		}
	case StatusFilled:
		if t.SeasonedDocentID == nil {
			return fmt.Errorf("%w: a filled tag needs a seasoned docent", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: status %q cannot be stored", ErrInvalidInput, t.Status)
	}
	return nil
}

type NewTagRequest struct {
	Date        Date
	TimeSlot    TimeSlot
	NewDocentID int64
	Notes       string
}

// Build 生成待插入记录（id 由存储分配）
func (n NewTagRequest) Build(now time.Time) TagRequest {
	return TagRequest{
		Date:        n.Date,
		TimeSlot:    n.TimeSlot,
		Status:      StatusRequested,
		NewDocentID: n.NewDocentID,
		Notes:       n.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TagRequestPatch 局部更新；nil 字段不变。没有办法把 seasonedDocentId 清空。
type TagRequestPatch struct {
	Date             *Date     `json:"date,omitempty"`
	TimeSlot         *TimeSlot `json:"timeSlot,omitempty"`
	Status           *Status   `json:"status,omitempty"`
	NewDocentID      *int64    `json:"newDocentId,omitempty"`
	SeasonedDocentID *int64    `json:"seasonedDocentId,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
}

func (p TagRequestPatch) IsEmpty() bool {
	return p.Date == nil && p.TimeSlot == nil && p.Status == nil &&
		p.NewDocentID == nil && p.SeasonedDocentID == nil && p.Notes == nil
}

func (p TagRequestPatch) Apply(t *TagRequest) {
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.TimeSlot != nil {
		t.TimeSlot = *p.TimeSlot
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.NewDocentID != nil {
		t.NewDocentID = *p.NewDocentID
	}
	if p.SeasonedDocentID != nil {
		id := *p.SeasonedDocentID
		t.SeasonedDocentID = &id
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
}

// Guard 在存储的锁/事务内对当前记录做前置检查，返回错误即放弃本次写入。
type Guard func(current TagRequest) error

// TagRequestStore 是唯一性与存在性的唯一权威；所有写操作要么全部生效要么不生效。
type TagRequestStore interface {
	Create(ctx context.Context, in NewTagRequest) (*TagRequest, error)
	Get(ctx context.Context, id int64) (*TagRequest, error)
	Update(ctx context.Context, id int64, patch TagRequestPatch, guard Guard) (*TagRequest, error)
	Delete(ctx context.Context, id int64, guard Guard) (bool, error)

	ListByDateRange(ctx context.Context, start, end Date) ([]TagRequest, error)
	ListByNewDocent(ctx context.Context, newDocentID int64) ([]TagRequest, error)
	ListBySeasonedDocent(ctx context.Context, seasonedDocentID int64) ([]TagRequest, error)
	CountByDocent(ctx context.Context, userID int64) (int64, error)
}
