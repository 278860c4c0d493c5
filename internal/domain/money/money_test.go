package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"hermes/internal/domain/money"
)

func TestIsDust(t *testing.T) {
	assert.True(t, money.IsDust(decimal.Zero))
	assert.True(t, money.IsDust(decimal.RequireFromString("0.00000001")))
	assert.True(t, money.IsDust(decimal.RequireFromString("-0.00000001")))
	assert.False(t, money.IsDust(decimal.RequireFromString("0.00000002")))
}

func TestEqualWithin(t *testing.T) {
	a := decimal.RequireFromString("1.000000004")
	b := decimal.RequireFromString("1.000000009")
	assert.True(t, money.EqualWithin(a, b))
	assert.False(t, money.EqualWithin(a, decimal.RequireFromString("1.1")))
}

func TestFloorAndCeilPrice(t *testing.T) {
	v := decimal.RequireFromString("0.1111111109")
	assert.Equal(t, "0.11111111", money.FloorPrice(v).String())
	assert.Equal(t, "0.11111112", money.CeilPrice(v).String())

	exact := decimal.RequireFromString("0.11111111")
	assert.True(t, money.FloorPrice(exact).Equal(exact))
	assert.True(t, money.CeilPrice(exact).Equal(exact))
}
