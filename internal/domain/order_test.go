package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(price string, qty int) CartLine {
	return CartLine{
		ID:       uuid.New(),
		Qty:      qty,
		Snapshot: Snapshot{ProductID: uuid.New(), Name: "item", Price: decimal.RequireFromString(price)},
	}
}

// Property 2: totals are the sum of price x qty plus shipping only when non-empty
func TestProperty_TotalsAreAdditive(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("total equals subtotal plus shipping", prop.ForAll(
		func(cents []int, qtys []int) bool {
			n := len(cents)
			if len(qtys) < n {
				n = len(qtys)
			}
			lines := make([]CartLine, 0, n)
			expected := decimal.Zero
			for i := 0; i < n; i++ {
				price := decimal.New(int64(cents[i]), -2)
				qty := qtys[i]
				lines = append(lines, CartLine{Qty: qty, Snapshot: Snapshot{Price: price}})
				expected = expected.Add(price.Mul(decimal.NewFromInt(int64(qty))))
			}

			fee := decimal.RequireFromString("5.00")
			totals := ComputeTotals(lines, fee)

			if !totals.Subtotal.Equal(expected) {
				return false
			}
			if n == 0 {
				return totals.Shipping.IsZero() && totals.Total.IsZero()
			}
			return totals.Shipping.Equal(fee) && totals.Total.Equal(expected.Add(fee))
		},
		gen.SliceOf(gen.IntRange(1, 100000)),
		gen.SliceOf(gen.IntRange(1, 20)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property 3: cancellation is only possible from placed
func TestProperty_CancelOnlyFromPlaced(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("non-placed orders are never cancellable", prop.ForAll(
		func(status OrderStatus, minutes int) bool {
			created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
			order := &Order{Status: status, CreatedAt: created}
			now := created.Add(time.Duration(minutes) * time.Minute)
			ok := order.Cancellable(now, 24*time.Hour)
			if status != OrderPlaced {
				return !ok
			}
			return ok == (minutes <= 24*60)
		},
		gen.OneConstOf(OrderPlaced, OrderProcessing, OrderDelivered, OrderCancelled),
		gen.IntRange(0, 48*60),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestNewOrderFromCart(t *testing.T) {
	userID := uuid.New()
	now := time.Now().UTC()
	lines := []CartLine{line("10.00", 3)}

	order, err := NewOrderFromCart(userID, lines, ShippingInfo{}, decimal.RequireFromString("5.00"), now)
	require.NoError(t, err)

	assert.Equal(t, OrderPlaced, order.Status)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("35.00")))
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("30.00")))
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Qty)
	assert.Equal(t, lines[0].Snapshot, order.Items[0].Snapshot)

	// Snapshots are values; mutating the source line afterwards leaves the order untouched.
	lines[0].Snapshot.Price = decimal.RequireFromString("99.00")
	assert.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("10.00")))

	_, err = NewOrderFromCart(userID, nil, ShippingInfo{}, decimal.Zero, now)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestOrderStatusTransitions(t *testing.T) {
	assert.True(t, OrderPlaced.CanTransition(OrderProcessing))
	assert.True(t, OrderPlaced.CanTransition(OrderCancelled))
	assert.True(t, OrderProcessing.CanTransition(OrderDelivered))
	assert.False(t, OrderProcessing.CanTransition(OrderCancelled))
	assert.False(t, OrderDelivered.CanTransition(OrderPlaced))
	assert.False(t, OrderCancelled.CanTransition(OrderPlaced))
}

func TestShippingInfo_Validate(t *testing.T) {
	info := ShippingInfo{FullName: "U", Address: "1 Main", City: "X", PostalCode: "1000", PaymentMethod: "cod"}
	assert.NoError(t, info.Validate())

	info.City = "  "
	assert.ErrorIs(t, info.Validate(), ErrValidation)
}

func TestClampQuantity(t *testing.T) {
	assert.Equal(t, 1, ClampQuantity(0))
	assert.Equal(t, 1, ClampQuantity(-4))
	assert.Equal(t, 7, ClampQuantity(7))
}
