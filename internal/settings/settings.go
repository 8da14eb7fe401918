package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
)

const (
	keyTableCount = "table_count"

	MinTables = 1
	MaxTables = 100
)

type Store struct {
	DB                *gorm.DB
	DefaultTableCount int
}

func (s *Store) TableCount(ctx context.Context) (int, error) {
	var row models.Setting
	err := s.DB.WithContext(ctx).Where("key = ?", keyTableCount).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.fallback(), nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(row.Value)
	if err != nil || n < MinTables || n > MaxTables {
		return s.fallback(), nil
	}
	return n, nil
}

func (s *Store) SetTableCount(ctx context.Context, n int) error {
	if n < MinTables || n > MaxTables {
		return fmt.Errorf("%w: table count must be between %d and %d", domain.ErrValidation, MinTables, MaxTables)
	}
	row := models.Setting{Key: keyTableCount, Value: strconv.Itoa(n)}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}

func (s *Store) fallback() int {
	if s.DefaultTableCount < MinTables || s.DefaultTableCount > MaxTables {
		return 12
	}
	return s.DefaultTableCount
}
