package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
)

// GormRepo is the order and order-item storage. Missing orders come back as domain.ErrNotFound.
type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) Transaction(ctx context.Context, fn func(tx *GormRepo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}

func notFound(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	return err
}

func (r *GormRepo) Create(ctx context.Context, o *models.Order) error {
	return r.DB.WithContext(ctx).Create(o).Error
}

// LastNumber returns the highest order number starting with prefix, or "" if there is none.
func (r *GormRepo) LastNumber(ctx context.Context, prefix string) (string, error) {
	var last []string
	err := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("order_number LIKE ?", prefix+"%").
		Order("order_number DESC").Limit(1).
		Pluck("order_number", &last).Error
	if err != nil || len(last) == 0 {
		return "", err
	}
	return last[0], nil
}

// TableOf returns the order's table id, nil for delivery orders.
func (r *GormRepo) TableOf(ctx context.Context, id uint) (*string, error) {
	var o models.Order
	if err := r.DB.WithContext(ctx).Select("id", "table_id").Where("id = ?", id).Take(&o).Error; err != nil {
		return nil, notFound(err, id)
	}
	return o.TableID, nil
}

func (r *GormRepo) LoadForUpdate(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	err := r.DB.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Items").Where("id = ?", id).Take(&o).Error
	if err != nil {
		return nil, notFound(err, id)
	}
	return &o, nil
}

// ApplyVersioned writes updates only if nobody bumped the version since o was read.
func (r *GormRepo) ApplyVersioned(ctx context.Context, o *models.Order, updates map[string]any) error {
	updates["version"] = o.Version + 1
	res := r.DB.WithContext(ctx).Model(&models.Order{}).Where("id = ? AND version = ?", o.ID, o.Version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d changed concurrently", domain.ErrConflict, o.ID)
	}
	o.Version++
	return nil
}

// MarkPaidIfUnpaid applies updates only while the order is still unpaid and reports whether it did.
func (r *GormRepo) MarkPaidIfUnpaid(ctx context.Context, id uint, updates map[string]any) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentUnpaid).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// ActiveForTableLocked row-locks a table's non-archived orders, oldest first.
func (r *GormRepo) ActiveForTableLocked(ctx context.Context, tableID string) ([]models.Order, error) {
	var active []models.Order
	err := r.DB.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Items").
		Where("table_id = ? AND archived_at IS NULL", tableID).
		Order("id ASC").Find(&active).Error
	return active, err
}

func (r *GormRepo) SetLedgered(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Update("ledgered", true).Error
}

func (r *GormRepo) ListUnledgered(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	err := r.DB.WithContext(ctx).
		Where("payment_status = ? AND ledgered = ?", models.PaymentPaid, false).
		Order("paid_at ASC, id ASC").Find(&out).Error
	return out, err
}

func (r *GormRepo) Get(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	if err := r.DB.WithContext(ctx).Preload("Items").Where("id = ?", id).Take(&o).Error; err != nil {
		return nil, notFound(err, id)
	}
	return &o, nil
}

func (r *GormRepo) ListActive(ctx context.Context, f Filter) ([]models.Order, error) {
	q := r.DB.WithContext(ctx).Preload("Items").Where("archived_at IS NULL")
	if f.TableID != "" {
		q = q.Where("table_id = ?", f.TableID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	out := []models.Order{}
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// ListArchivedBetween returns orders archived in [start, end), newest first.
func (r *GormRepo) ListArchivedBetween(ctx context.Context, start, end time.Time, limit int) ([]models.Order, error) {
	out := []models.Order{}
	err := r.DB.WithContext(ctx).Preload("Items").
		Where("archived_at >= ? AND archived_at < ?", start, end).
		Order("archived_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// DeleteWithItems removes the order and its lines.
func (r *GormRepo) DeleteWithItems(ctx context.Context, id uint) error {
	if err := r.DB.WithContext(ctx).Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Delete(&models.Order{}, id).Error
}
