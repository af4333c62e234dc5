package customer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBalance(s string) *Customer {
	c := New("cust-1", "user-1")
	c.Balance = decimal.RequireFromString(s)
	return c
}

func TestDebit(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		amount  string
		want    string
		wantErr error
	}{
		{name: "partial", balance: "100", amount: "30.25", want: "69.75"},
		{name: "exact", balance: "100", amount: "100", want: "0"},
		{name: "zero amount", balance: "100", amount: "0", want: "100"},
		{name: "empty balance", balance: "0", amount: "10", want: "0", wantErr: ErrNoBalance},
		{name: "empty balance zero amount", balance: "0", amount: "0", want: "0", wantErr: ErrNoBalance},
		{name: "short", balance: "10", amount: "10.01", want: "10", wantErr: ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := withBalance(tt.balance)
			err := c.Debit(decimal.RequireFromString(tt.amount))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, c.Balance.String())
		})
	}
}

func TestDebitRejectsNegative(t *testing.T) {
	c := withBalance("10")
	assert.Error(t, c.Debit(decimal.NewFromInt(-1)))
	assert.Equal(t, "10", c.Balance.String())
}

func TestCredit(t *testing.T) {
	c := withBalance("0")
	require.NoError(t, c.Credit(decimal.RequireFromString("12.345")))
	assert.Equal(t, "12.35", c.Balance.String())

	assert.Error(t, c.Credit(decimal.Zero))
	assert.Error(t, c.Credit(decimal.NewFromInt(-5)))
	assert.Equal(t, "12.35", c.Balance.String())
}
