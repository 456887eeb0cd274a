package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/feature/tagrequest"
)

// TagRequestRepo 每个写操作都是一个事务：行锁读取 -> guard -> 写入
type TagRequestRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTagRequestRepo(db *gorm.DB) *TagRequestRepo {
	return &TagRequestRepo{db: db, now: time.Now}
}

var _ domain.TagRequestStore = (*TagRequestRepo)(nil)

func (r *TagRequestRepo) Create(ctx context.Context, in domain.NewTagRequest) (*domain.TagRequest, error) {
	tr := in.Build(r.now())
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	m := tagrequest.FromDomain(tr)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isDupKey(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateSlot, tr.Slot())
		}
		return nil, fmt.Errorf("repo.TagRequest.Create: %w", err)
	}
	out := m.ToDomain()
	return &out, nil
}

func (r *TagRequestRepo) Get(ctx context.Context, id int64) (*domain.TagRequest, error) {
	var m tagrequest.TagRequestModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: tag request %d", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("repo.TagRequest.Get: %w", err)
	}
	out := m.ToDomain()
	return &out, nil
}

func (r *TagRequestRepo) lockRow(tx *gorm.DB, id int64) (*tagrequest.TagRequestModel, error) {
	var m tagrequest.TagRequestModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *TagRequestRepo) Update(ctx context.Context, id int64, patch domain.TagRequestPatch, guard domain.Guard) (*domain.TagRequest, error) {
	var out domain.TagRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := r.lockRow(tx, id)
		if err != nil {
			return fmt.Errorf("repo.TagRequest.Update: %w", err)
		}
		if m == nil {
			return fmt.Errorf("%w: tag request %d", domain.ErrNotFound, id)
		}
		cur := m.ToDomain()
		if guard != nil {
			if err := guard(cur); err != nil {
				return err
			}
		}
		next := cur
		patch.Apply(&next)
		next.UpdatedAt = r.now()
		if err := next.Validate(); err != nil {
			return err
		}
		nm := tagrequest.FromDomain(next)
		if err := tx.Model(&tagrequest.TagRequestModel{ID: id}).Updates(nm.Columns()).Error; err != nil {
			if isDupKey(err) {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateSlot, next.Slot())
			}
			return fmt.Errorf("repo.TagRequest.Update: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TagRequestRepo) Delete(ctx context.Context, id int64, guard domain.Guard) (bool, error) {
	var existed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := r.lockRow(tx, id)
		if err != nil {
			return fmt.Errorf("repo.TagRequest.Delete: %w", err)
		}
		if m == nil {
			return nil
		}
		if guard != nil {
			if err := guard(m.ToDomain()); err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&tagrequest.TagRequestModel{})
		if res.Error != nil {
			return fmt.Errorf("repo.TagRequest.Delete: %w", res.Error)
		}
		existed = res.RowsAffected > 0
		return nil
	})
	return existed, err
}

func (r *TagRequestRepo) list(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB) ([]domain.TagRequest, error) {
	var ms []tagrequest.TagRequestModel
	q := scope(r.db.WithContext(ctx).Model(&tagrequest.TagRequestModel{}))
	if err := q.Order("date, time_slot, id").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("repo.TagRequest.%s: %w", op, err)
	}
	out := make([]domain.TagRequest, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ToDomain())
	}
	return out, nil
}

// ListByDateRange 闭区间；日期按文本传参，只比较日历日
func (r *TagRequestRepo) ListByDateRange(ctx context.Context, start, end domain.Date) ([]domain.TagRequest, error) {
	return r.list(ctx, "ListByDateRange", func(q *gorm.DB) *gorm.DB {
		return q.Where("date BETWEEN ? AND ?", start.String(), end.String())
	})
}

func (r *TagRequestRepo) ListByNewDocent(ctx context.Context, newDocentID int64) ([]domain.TagRequest, error) {
	return r.list(ctx, "ListByNewDocent", func(q *gorm.DB) *gorm.DB {
		return q.Where("new_docent_id = ?", newDocentID)
	})
}

func (r *TagRequestRepo) ListBySeasonedDocent(ctx context.Context, seasonedDocentID int64) ([]domain.TagRequest, error) {
	return r.list(ctx, "ListBySeasonedDocent", func(q *gorm.DB) *gorm.DB {
		return q.Where("seasoned_docent_id = ?", seasonedDocentID)
	})
}

func (r *TagRequestRepo) CountByDocent(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&tagrequest.TagRequestModel{}).
		Where("new_docent_id = ? OR seasoned_docent_id = ?", userID, userID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("repo.TagRequest.CountByDocent: %w", err)
	}
	return n, nil
}
