// Package search keeps archived orders findable by customer, order number or item.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
)

type Index interface {
	IndexOrder(ctx context.Context, o *models.Order) error
	RemoveOrder(ctx context.Context, id uint) error
	Search(ctx context.Context, query string, from, size int) (int64, []models.Order, error)
}

type ESIndex struct {
	Client *elasticsearch.Client
	Name   string
}

func docID(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func (x *ESIndex) IndexOrder(ctx context.Context, o *models.Order) error {
	body, err := json.Marshal(o)
	if err != nil {
		return err
	}
	res, err := x.Client.Index(x.Name, bytes.NewReader(body),
		x.Client.Index.WithDocumentID(docID(o.ID)),
		x.Client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index order %d: %w", o.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index order %d: %s: %s", o.ID, res.Status(), msg)
	}
	return nil
}

func (x *ESIndex) RemoveOrder(ctx context.Context, id uint) error {
	res, err := x.Client.Delete(x.Name, docID(id), x.Client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("remove order %d: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("remove order %d: %s", id, res.Status())
	}
	return nil
}

func (x *ESIndex) Search(ctx context.Context, query string, from, size int) (int64, []models.Order, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"order_number^3", "customer_name^2", "customer_phone", "items.name"},
				"fuzziness": "AUTO",
			},
		},
		"sort": []any{map[string]any{"archived_at": map[string]any{"order": "desc", "unmapped_type": "date"}}},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, err
	}

	res, err := x.Client.Search(
		x.Client.Search.WithContext(ctx),
		x.Client.Search.WithIndex(x.Name),
		x.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search orders: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("search orders: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct{ Value int64 } `json:"total"`
			Hits  []struct {
				Source models.Order `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	orders := make([]models.Order, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		orders[i] = hit.Source
	}
	return r.Hits.Total.Value, orders, nil
}

// DBIndex answers history searches straight from the orders table when no
// Elasticsearch cluster is configured.
type DBIndex struct {
	DB *gorm.DB
}

func (x *DBIndex) IndexOrder(context.Context, *models.Order) error { return nil }

func (x *DBIndex) RemoveOrder(context.Context, uint) error { return nil }

func (x *DBIndex) Search(ctx context.Context, query string, from, size int) (int64, []models.Order, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	q := x.DB.WithContext(ctx).Model(&models.Order{}).
		Where("archived_at IS NOT NULL").
		Where("LOWER(order_number) LIKE ? OR LOWER(customer_name) LIKE ? OR customer_phone LIKE ?", like, like, like).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}
	orders := []models.Order{}
	err := q.Preload("Items").Order("archived_at DESC, id DESC").Offset(from).Limit(size).Find(&orders).Error
	return total, orders, err
}
