// Package money holds amounts as integer minor units (paisa) so totals never drift.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const scale = 2

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Amount is a count of minor units.
type Amount int64

func FromMinor(v int64) Amount { return Amount(v) }

// Parse accepts "180", "180.5" or "180.50" and rejects sub-minor precision.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if !d.Equal(d.Truncate(scale)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, scale)
	}
	minor := d.Shift(scale)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return Amount(minor.IntPart()), nil
}

func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Minor() int64 { return int64(a) }

func (a Amount) Mul(qty int) Amount { return a * Amount(qty) }

func (a Amount) IsPositive() bool { return a > 0 }

func (a Amount) String() string {
	return decimal.New(int64(a), -scale).StringFixed(scale)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}
