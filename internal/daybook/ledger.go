package daybook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
)

const (
	dateLayout   = "2006-01-02"
	defaultLimit = 200
	maxLimit     = 1000
)

// Ledger is append-only: rows are never updated or deleted.
type Ledger struct {
	DB       *gorm.DB
	Pub      realtime.Publisher
	Location *time.Location
	Now      func() time.Time
}

type AppendInput struct {
	Type        string       `json:"type"`
	Amount      money.Amount `json:"amount"`
	Description string       `json:"description"`
	Date        string       `json:"date"`
}

type Summary struct {
	Date                     string        `json:"date"`
	OpeningBalance           money.Amount  `json:"opening_balance"`
	CashPayments             money.Amount  `json:"cash_payments"`
	CardPayments             money.Amount  `json:"card_payments"`
	OnlinePayments           money.Amount  `json:"online_payments"`
	TotalPayments            money.Amount  `json:"total_payments"`
	Expenses                 money.Amount  `json:"expenses"`
	CashHandovers            money.Amount  `json:"cash_handovers"`
	CalculatedClosingBalance money.Amount  `json:"calculated_closing_balance"`
	RecordedClosingBalance   *money.Amount `json:"recorded_closing_balance"`
	Discrepancy              money.Amount  `json:"discrepancy"`
	Balanced                 bool          `json:"balanced"`
	TransactionCount         int           `json:"transaction_count"`
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) loc() *time.Location {
	if l.Location != nil {
		return l.Location
	}
	return time.UTC
}

// BusinessDate is the local calendar date of t in the restaurant's timezone.
func (l *Ledger) BusinessDate(t time.Time) string {
	return t.In(l.loc()).Format(dateLayout)
}

func (l *Ledger) Today() string { return l.BusinessDate(l.now()) }

func (l *Ledger) resolveDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return l.Today(), nil
	}
	if _, err := time.ParseInLocation(dateLayout, date, l.loc()); err != nil {
		return "", fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
	}
	return date, nil
}

func (l *Ledger) Append(ctx context.Context, in AppendInput) (*models.DaybookTransaction, error) {
	tt, err := models.ParseTransactionType(strings.TrimSpace(in.Type))
	if err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be > 0", domain.ErrValidation)
	}
	if len(in.Description) > 255 {
		return nil, fmt.Errorf("%w: description too long", domain.ErrValidation)
	}
	date, err := l.resolveDate(in.Date)
	if err != nil {
		return nil, err
	}

	row := &models.DaybookTransaction{
		Type:         tt,
		Amount:       in.Amount,
		Description:  strings.TrimSpace(in.Description),
		BusinessDate: date,
		CreatedAt:    l.now(),
	}
	if err := l.DB.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	l.publish(row)
	return row, nil
}

// RecordPayment appends the ledger row of a paid order. A second call for the same
// order returns the existing row, which makes reconciliation retries safe.
func (l *Ledger) RecordPayment(ctx context.Context, o *models.Order) (*models.DaybookTransaction, error) {
	if o.PaymentStatus != models.PaymentPaid {
		return nil, fmt.Errorf("%w: order %s is not paid", domain.ErrValidation, o.OrderNumber)
	}
	paidAt := l.now()
	if o.PaidAt != nil {
		paidAt = *o.PaidAt
	}
	orderID := o.ID

	var row models.DaybookTransaction
	created := false
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("order_id = ?", orderID).Take(&row).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row = models.DaybookTransaction{
			Type:         o.PaymentMethod.LedgerType(),
			Amount:       o.Total,
			Description:  fmt.Sprintf("Payment for %s (%s)", o.OrderNumber, o.PaymentMethod),
			OrderID:      &orderID,
			BusinessDate: l.BusinessDate(paidAt),
			CreatedAt:    l.now(),
		}
		created = true
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, err
	}
	if created {
		l.publish(&row)
	}
	return &row, nil
}

func (l *Ledger) publish(row *models.DaybookTransaction) {
	if l.Pub != nil {
		l.Pub.Publish(realtime.TransactionEvent(row))
	}
}

// GetTransactions lists one business day in insertion order and flags rows whose
// order has since been deleted.
func (l *Ledger) GetTransactions(ctx context.Context, date string, limit int) ([]models.DaybookTransaction, error) {
	date, err := l.resolveDate(date)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	rows := []models.DaybookTransaction{}
	if err := l.DB.WithContext(ctx).
		Where("business_date = ?", date).
		Order("created_at ASC, id ASC").Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	var ids []uint
	for _, r := range rows {
		if r.OrderID != nil {
			ids = append(ids, *r.OrderID)
		}
	}
	if len(ids) == 0 {
		return rows, nil
	}
	var existing []uint
	if err := l.DB.WithContext(ctx).Model(&models.Order{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
		return nil, err
	}
	live := make(map[uint]struct{}, len(existing))
	for _, id := range existing {
		live[id] = struct{}{}
	}
	for i := range rows {
		if rows[i].OrderID == nil {
			continue
		}
		if _, ok := live[*rows[i].OrderID]; !ok {
			rows[i].Orphaned = true
		}
	}
	return rows, nil
}

// GetSummary reconciles the till for a business day:
// calculated closing = opening + cash payments - expenses - cash handovers.
func (l *Ledger) GetSummary(ctx context.Context, date string) (*Summary, error) {
	date, err := l.resolveDate(date)
	if err != nil {
		return nil, err
	}
	db := l.DB.WithContext(ctx)
	s := &Summary{Date: date}

	var opening models.DaybookTransaction
	err = db.Where("type = ? AND business_date <= ?", models.TxOpeningBalance, date).
		Order("business_date DESC, created_at DESC, id DESC").Take(&opening).Error
	switch {
	case err == nil:
		s.OpeningBalance = opening.Amount
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	var sums []struct {
		Type  string
		Total int64
		N     int
	}
	if err := db.Model(&models.DaybookTransaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS n").
		Where("business_date = ?", date).
		Group("type").Scan(&sums).Error; err != nil {
		return nil, err
	}
	for _, row := range sums {
		amt := money.FromMinor(row.Total)
		s.TransactionCount += row.N
		switch models.TransactionType(row.Type) {
		case models.TxCashPayment:
			s.CashPayments = amt
		case models.TxCardPayment:
			s.CardPayments = amt
		case models.TxOnlinePayment:
			s.OnlinePayments = amt
		case models.TxExpense:
			s.Expenses = amt
		case models.TxCashHandover:
			s.CashHandovers = amt
		}
	}
	s.TotalPayments = s.CashPayments + s.CardPayments + s.OnlinePayments
	s.CalculatedClosingBalance = s.OpeningBalance + s.CashPayments - s.Expenses - s.CashHandovers

	var closing models.DaybookTransaction
	err = db.Where("type = ? AND business_date = ?", models.TxClosingBalance, date).
		Order("created_at DESC, id DESC").Take(&closing).Error
	switch {
	case err == nil:
		recorded := closing.Amount
		s.RecordedClosingBalance = &recorded
		s.Discrepancy = recorded - s.CalculatedClosingBalance
		s.Balanced = s.Discrepancy == 0
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.Balanced = true
	default:
		return nil, err
	}
	return s, nil
}
