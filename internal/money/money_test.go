package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{"180", 18000, false},
		{"180.5", 18050, false},
		{" 0.01 ", 1, false},
		{"5000.00", 500000, false},
		{"1.005", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"92233720368547758.07", Amount(math.MaxInt64), false},
		{"92233720368547758.08", 0, true},
		{"100000000000000000000", 0, true},
		{"-92233720368547758.09", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "360.00", Amount(36000).String())
	assert.Equal(t, "0.05", Amount(5).String())
	assert.Equal(t, "-12.30", Amount(-1230).String())
}

func TestJSON(t *testing.T) {
	var v struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.50","b":7}`), &v))
	assert.Equal(t, Amount(1250), v.A)
	assert.Equal(t, Amount(700), v.B)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"12.50","b":"7.00"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"0.001"}`), &v))
}

func TestMulAndSum(t *testing.T) {
	assert.Equal(t, Amount(36000), MustParse("180").Mul(2))
	assert.Equal(t, Amount(600), Sum(100, 200, 300))
}
