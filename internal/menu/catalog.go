// Package menu is the read-only price source for order lines.
package menu

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
)

type Catalog struct {
	DB *gorm.DB
}

// Lookup returns the requested items keyed by id. Missing ids are simply absent.
func (c *Catalog) Lookup(ctx context.Context, ids []string) (map[string]models.MenuItem, error) {
	out := make(map[string]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.MenuItem
	if err := c.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (c *Catalog) List(ctx context.Context) ([]models.MenuItem, error) {
	var items []models.MenuItem
	err := c.DB.WithContext(ctx).Where("available = ?", true).Order("name ASC").Find(&items).Error
	return items, err
}

// Upsert replaces prices and availability of the given items.
func (c *Catalog) Upsert(ctx context.Context, items []models.MenuItem) error {
	if len(items) == 0 {
		return nil
	}
	return c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "available"}),
	}).Create(&items).Error
}

// SeedFile loads a JSON array of menu items, e.g. [{"id":"momo","name":"Momo","price":"180.00","available":true}].
func (c *Catalog) SeedFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read menu seed: %w", err)
	}
	var items []models.MenuItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("parse menu seed: %w", err)
	}
	for i := range items {
		if items[i].ID == "" || items[i].Name == "" || items[i].Price <= 0 {
			return 0, fmt.Errorf("menu seed entry %d: id, name and positive price required", i)
		}
	}
	return len(items), c.Upsert(ctx, items)
}
