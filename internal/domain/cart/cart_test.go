package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemAdd(t *testing.T) {
	item := NewItem("item-1", "cart-1", "prod-1")
	assert.Equal(t, 0, item.Count)

	require.NoError(t, item.Add(2))
	require.NoError(t, item.Add(1))
	assert.Equal(t, 3, item.Count)

	assert.ErrorIs(t, item.Add(0), ErrInvalidQuantity)
	assert.Equal(t, 3, item.Count)
}

func TestCloneIsIndependent(t *testing.T) {
	c := New("cart-1", "cust-1")
	clone := c.Clone()
	clone.CustomerID = "cust-2"
	assert.Equal(t, "cust-1", c.CustomerID)

	item := NewItem("item-1", "cart-1", "prod-1")
	ic := item.Clone()
	require.NoError(t, ic.Add(1))
	assert.Equal(t, 0, item.Count)
}
