package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
)

// GormRepo is the table, cart and table-history storage. Lookups that find nothing
// return nil without an error.
type GormRepo struct {
	DB *gorm.DB
}

// Transaction runs fn with a repo bound to one database transaction.
func (r *GormRepo) Transaction(ctx context.Context, fn func(tx *GormRepo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}

func (r *GormRepo) LockTable(ctx context.Context, id string) (*models.Table, error) {
	var t models.Table
	err := r.DB.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormRepo) GetTable(ctx context.Context, id string) (*models.Table, error) {
	var t models.Table
	err := r.DB.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormRepo) CreateTable(ctx context.Context, t *models.Table) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *GormRepo) ListTables(ctx context.Context) ([]models.Table, error) {
	var rows []models.Table
	err := r.DB.WithContext(ctx).Find(&rows).Error
	return rows, err
}

func (r *GormRepo) SeatCustomer(ctx context.Context, id string, c Customer, start *time.Time, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.Table{}).Where("id = ?", id).Updates(map[string]any{
		"customer_name":  c.Name,
		"customer_phone": c.Phone,
		"session_start":  start,
		"version":        gorm.Expr("version + 1"),
		"updated_at":     now,
	}).Error
}

// SetStatus reports false when the table row does not exist yet.
func (r *GormRepo) SetStatus(ctx context.Context, id string, status models.TableStatus, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Table{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	})
	return res.RowsAffected > 0, res.Error
}

// ResetTable empties the table and forgets its customer.
func (r *GormRepo) ResetTable(ctx context.Context, id string, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.Table{}).Where("id = ?", id).Updates(map[string]any{
		"status":         models.TableEmpty,
		"customer_name":  "",
		"customer_phone": "",
		"session_start":  nil,
		"version":        gorm.Expr("version + 1"),
		"updated_at":     now,
	}).Error
}

// ActiveOrders returns the status fields of a table's non-archived orders.
func (r *GormRepo) ActiveOrders(ctx context.Context, id string) ([]models.Order, error) {
	var active []models.Order
	err := r.DB.WithContext(ctx).Select("id", "status", "payment_status").
		Where("table_id = ? AND archived_at IS NULL", id).Find(&active).Error
	return active, err
}

func (r *GormRepo) CountActiveOrders(ctx context.Context, id string) (int, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("table_id = ? AND archived_at IS NULL", id).Count(&n).Error
	return int(n), err
}

// ActiveOrderCounts maps table id to its number of non-archived orders.
func (r *GormRepo) ActiveOrderCounts(ctx context.Context) (map[string]int, error) {
	var counts []struct {
		TableID string
		N       int
	}
	err := r.DB.WithContext(ctx).Model(&models.Order{}).
		Select("table_id, COUNT(*) AS n").
		Where("archived_at IS NULL AND table_id IS NOT NULL").
		Group("table_id").Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.TableID] = c.N
	}
	return out, nil
}

func (r *GormRepo) LoadCart(ctx context.Context, id string) (*models.TableSession, error) {
	var row models.TableSession
	err := r.DB.WithContext(ctx).Where("table_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *GormRepo) SaveCart(ctx context.Context, row *models.TableSession) error {
	return r.DB.WithContext(ctx).Save(row).Error
}

func (r *GormRepo) DeleteCart(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Where("table_id = ?", id).Delete(&models.TableSession{}).Error
}

func (r *GormRepo) CreateHistory(ctx context.Context, h *models.TableHistory) error {
	return r.DB.WithContext(ctx).Create(h).Error
}
