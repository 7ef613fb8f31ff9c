package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCollection implements shared.Collection for any GORM-mapped entity
type GormCollection[T any] struct {
	db         *gorm.DB
	sortFields map[string]bool
}

// NewGormCollection creates a collection over the given DB (or transaction)
func NewGormCollection[T any](db *gorm.DB, sortFields map[string]bool) *GormCollection[T] {
	if sortFields == nil {
		sortFields = CommonSortFields
	}
	return &GormCollection[T]{db: db, sortFields: sortFields}
}

// DB returns the underlying handle, scoped to a transaction when the collection is
func (c *GormCollection[T]) DB() *gorm.DB {
	return c.db
}

// Create inserts a new entity
func (c *GormCollection[T]) Create(ctx context.Context, entity *T) error {
	return c.db.WithContext(ctx).Create(entity).Error
}

// FindByID finds an entity by its ID
func (c *GormCollection[T]) FindByID(ctx context.Context, id uuid.UUID) (*T, error) {
	var entity T
	if err := c.db.WithContext(ctx).First(&entity, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &entity, nil
}

// Update saves all fields of an existing entity
func (c *GormCollection[T]) Update(ctx context.Context, entity *T) error {
	return c.db.WithContext(ctx).Save(entity).Error
}

// FindOne returns the first entity matching the filter in the filter's order
func (c *GormCollection[T]) FindOne(ctx context.Context, filter shared.Filter) (*T, error) {
	var entity T
	query := c.applyOrder(c.applyConditions(c.db.WithContext(ctx).Model(new(T)), filter), filter)
	if err := query.First(&entity).Error; err != nil {
		return nil, translateError(err)
	}
	return &entity, nil
}

// FindAll returns the entities matching the filter, paginated when PageSize is set
func (c *GormCollection[T]) FindAll(ctx context.Context, filter shared.Filter) ([]T, error) {
	var entities []T
	query := c.applyOrder(c.applyConditions(c.db.WithContext(ctx).Model(new(T)), filter), filter)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	if err := query.Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

// Count counts the entities matching the filter conditions
func (c *GormCollection[T]) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	if err := c.applyConditions(c.db.WithContext(ctx).Model(new(T)), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (c *GormCollection[T]) applyConditions(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for column, value := range filter.Filters {
		query = query.Where(map[string]interface{}{column: value})
	}
	return query
}

func (c *GormCollection[T]) applyOrder(query *gorm.DB, filter shared.Filter) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, c.sortFields, "created_at")
	return query.Order(fmt.Sprintf("%s %s", field, ValidateSortOrder(filter.OrderDir)))
}

// forUpdate adds SELECT ... FOR UPDATE. SQLite has no row locks and serializes writers itself.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}
