package corpus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recordModel struct {
	Kind      string `gorm:"primaryKey;size:32"`
	Key       string `gorm:"column:record_key;primaryKey;size:191"`
	Idx       int64  `gorm:"index"`
	Lookup    string `gorm:"index;size:191"`
	Status    string `gorm:"index;size:16"`
	Body      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (recordModel) TableName() string { return "corpus_records" }

type memberModel struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	Kind  string `gorm:"uniqueIndex:idx_member;size:32"`
	Key   string `gorm:"column:record_key;uniqueIndex:idx_member;size:191"`
	Set   string `gorm:"column:set_name;uniqueIndex:idx_member;size:32"`
	Value string `gorm:"uniqueIndex:idx_member;size:191"`
}

func (memberModel) TableName() string { return "corpus_members" }

type sequenceModel struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64
}

func (sequenceModel) TableName() string { return "corpus_sequences" }

type flagModel struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int
}

func (flagModel) TableName() string { return "corpus_flags" }

// GormRepository stores the corpus in a SQL database through gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository migrates the corpus tables and returns the repository.
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&recordModel{}, &memberModel{}, &sequenceModel{}, &flagModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate corpus tables: %w", err)
	}
	return &GormRepository{db: db}, nil
}

func toRecord(m *recordModel) *Record {
	return &Record{
		Kind:   Kind(m.Kind),
		Key:    m.Key,
		Index:  m.Idx,
		Lookup: m.Lookup,
		Status: Status(m.Status),
		Body:   m.Body,
	}
}

func (r *GormRepository) Get(ctx context.Context, kind Kind, key string) (*Record, error) {
	var m recordModel
	err := r.db.WithContext(ctx).Where("kind = ? AND record_key = ?", string(kind), key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", kind, key, err)
	}
	return toRecord(&m), nil
}

func (r *GormRepository) Put(ctx context.Context, rec *Record) (bool, error) {
	m := recordModel{
		Kind:   string(rec.Kind),
		Key:    rec.Key,
		Idx:    rec.Index,
		Lookup: rec.Lookup,
		Status: string(rec.Status),
		Body:   rec.Body,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil {
		return false, fmt.Errorf("put %s/%s: %w", rec.Kind, rec.Key, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepository) updateColumn(ctx context.Context, kind Kind, key, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&recordModel{}).
		Where("kind = ? AND record_key = ?", string(kind), key).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update %s of %s/%s: %w", column, kind, key, res.Error)
	}
	if res.RowsAffected == 0 {
		// mysql 在值未变化时也返回 0
		if _, err := r.Get(ctx, kind, key); err != nil {
			return fmt.Errorf("%s/%s: %w", kind, key, err)
		}
	}
	return nil
}

func (r *GormRepository) Replace(ctx context.Context, rec *Record) error {
	return r.updateColumn(ctx, rec.Kind, rec.Key, "body", []byte(rec.Body))
}

func (r *GormRepository) SetStatus(ctx context.Context, kind Kind, key string, status Status) error {
	return r.updateColumn(ctx, kind, key, "status", string(status))
}

func (r *GormRepository) SetLookup(ctx context.Context, kind Kind, key, lookup string) error {
	return r.updateColumn(ctx, kind, key, "lookup", lookup)
}

func (r *GormRepository) find(ctx context.Context, query *gorm.DB) ([]*Record, error) {
	var models []recordModel
	if err := query.WithContext(ctx).Order("idx, record_key").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*Record, len(models))
	for i := range models {
		out[i] = toRecord(&models[i])
	}
	return out, nil
}

func (r *GormRepository) List(ctx context.Context, kind Kind, status Status) ([]*Record, error) {
	q := r.db.Where("kind = ?", string(kind))
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return r.find(ctx, q)
}

func (r *GormRepository) FindByLookup(ctx context.Context, kind Kind, lookup string) ([]*Record, error) {
	return r.find(ctx, r.db.Where("kind = ? AND lookup = ?", string(kind), lookup))
}

func (r *GormRepository) UnionInsert(ctx context.Context, kind Kind, key, set string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]memberModel, 0, len(values))
	for _, v := range values {
		rows = append(rows, memberModel{Kind: string(kind), Key: key, Set: set, Value: v})
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("union insert %s/%s.%s: %w", kind, key, set, err)
	}
	return nil
}

func (r *GormRepository) Members(ctx context.Context, kind Kind, key, set string) ([]string, error) {
	var values []string
	err := r.db.WithContext(ctx).Model(&memberModel{}).
		Where("kind = ? AND record_key = ? AND set_name = ?", string(kind), key, set).
		Order("id").Pluck("value", &values).Error
	if err != nil {
		return nil, fmt.Errorf("members %s/%s.%s: %w", kind, key, set, err)
	}
	return values, nil
}

func (r *GormRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	var seq sequenceModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sequenceModel{Name: name}).Error; err != nil {
			return err
		}
		if err := tx.Model(&sequenceModel{}).Where("name = ?", name).
			UpdateColumn("value", gorm.Expr("value + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).First(&seq).Error
	})
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return seq.Value, nil
}

func (r *GormRepository) CompareAndSetFlag(ctx context.Context, name string, prev, next int) (bool, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&flagModel{Name: name}).Error; err != nil {
		return false, fmt.Errorf("init flag %s: %w", name, err)
	}
	if prev == next {
		var f flagModel
		if err := db.Where("name = ?", name).First(&f).Error; err != nil {
			return false, err
		}
		return f.Value == prev, nil
	}
	res := db.Model(&flagModel{}).Where("name = ? AND value = ?", name, prev).UpdateColumn("value", next)
	if res.Error != nil {
		return false, fmt.Errorf("set flag %s: %w", name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepository) Flag(ctx context.Context, name string) (int, error) {
	var f flagModel
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read flag %s: %w", name, err)
	}
	return f.Value, nil
}
