package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists records in a relational database. T must be a GORM
// model whose primary key column is id and which has a created_at column.
type GormStore[T Record] struct {
	db *gorm.DB
}

func NewGormStore[T Record](db *gorm.DB) *GormStore[T] {
	return &GormStore[T]{db: db}
}

// column maps a JSON field name such as qrCodeId to its column qr_code_id.
func (s *GormStore[T]) column(field string) string {
	return s.db.NamingStrategy.ColumnName("", field)
}

func (s *GormStore[T]) where(tx *gorm.DB, filter Filter) *gorm.DB {
	if len(filter) == 0 {
		return tx
	}
	conds := make(map[string]interface{}, len(filter))
	for k, v := range filter {
		conds[s.column(k)] = v
	}
	return tx.Where(conds)
}

func (s *GormStore[T]) Put(ctx context.Context, rec T) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

func (s *GormStore[T]) Get(ctx context.Context, id string) (*T, error) {
	var rec T
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore[T]) GetAll(ctx context.Context, filter Filter, opts FindOptions) ([]T, error) {
	recs := make([]T, 0)
	query := s.where(s.db.WithContext(ctx).Model(new(T)), filter)
	if opts.SortByCreatedDesc {
		query = query.Order("created_at DESC")
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if err := query.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GormStore[T]) Update(ctx context.Context, id string, fields Fields) (*T, error) {
	var out *T
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec T
		err := tx.Where("id = ?", id).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		updated, err := merge(rec, fields)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore[T]) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	tx := s.db.WithContext(ctx)
	if len(filter) == 0 {
		tx = tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	res := s.where(tx, filter).Delete(new(T))
	return res.RowsAffected, res.Error
}

// Increment issues a single UPDATE ... SET field = field + delta.
func (s *GormStore[T]) Increment(ctx context.Context, id, field string, delta int) (*T, error) {
	col := s.column(field)
	res := s.db.WithContext(ctx).Model(new(T)).
		Where("id = ?", id).
		UpdateColumn(col, gorm.Expr(fmt.Sprintf("%s + ?", col), delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *GormStore[T]) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
