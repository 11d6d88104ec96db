package service

import (
	"context"
	"sync"
	"testing"

	"allhall/internal/domain"
	"allhall/internal/realtime"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_AddMergesSameVariant(t *testing.T) {
	f := newFixture()
	svc := f.cart()
	ctx := context.Background()
	u := session(domain.RoleUser)
	p := f.seedProduct(uuid.New(), domain.ProductApproved, "10.00")
	variant := domain.Variant{Color: "black", Size: "M"}

	_, err := svc.AddToCart(ctx, u, p.ID, variant, 2)
	require.NoError(t, err)
	line, err := svc.AddToCart(ctx, u, p.ID, domain.Variant{Color: " black", Size: "M "}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, line.Qty)

	cart, err := svc.GetCart(ctx, u)
	require.NoError(t, err)
	require.Equal(t, 1, cart.Count())
	assert.Equal(t, 3, cart.Lines[0].Qty)
	assert.True(t, cart.Totals.Subtotal.Equal(decimal.RequireFromString("30.00")))

	totals, err := svc.Totals(ctx, u)
	require.NoError(t, err)
	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("30.00")))
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("35.00")))
	assert.True(t, f.hub.notified(realtime.CartTopic(u.UserID)))
}

func TestCart_DifferentVariantsAreSeparateLines(t *testing.T) {
	f := newFixture()
	svc := f.cart()
	ctx := context.Background()
	u := session(domain.RoleUser)
	p := f.seedProduct(uuid.New(), domain.ProductApproved, "4.50")

	_, err := svc.AddToCart(ctx, u, p.ID, domain.Variant{Size: "S"}, 1)
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, u, p.ID, domain.Variant{Size: "L"}, 1)
	require.NoError(t, err)

	cart, err := svc.GetCart(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Count())
}

// Feature: allhall, Property 6: concurrent adds to one key sum their quantities into one line
func TestProperty_AddToCartSumsDeltas(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("final qty equals sum of deltas", prop.ForAll(
		func(deltas []int) bool {
			f := newFixture()
			svc := f.cart()
			u := session(domain.RoleUser)
			p := f.seedProduct(uuid.New(), domain.ProductApproved, "1.00")

			var wg sync.WaitGroup
			want := 0
			for _, d := range deltas {
				want += d
				wg.Add(1)
				go func(d int) {
					defer wg.Done()
					_, _ = svc.AddToCart(context.Background(), u, p.ID, domain.Variant{Color: "red"}, d)
				}(d)
			}
			wg.Wait()

			cart, err := svc.GetCart(context.Background(), u)
			if err != nil {
				return false
			}
			if len(deltas) == 0 {
				return cart.Count() == 0
			}
			return cart.Count() == 1 && cart.Lines[0].Qty == want
		},
		gen.SliceOf(gen.IntRange(1, 5)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCart_RejectsUnapprovedProducts(t *testing.T) {
	f := newFixture()
	svc := f.cart()
	ctx := context.Background()
	u := session(domain.RoleUser)

	for _, status := range []domain.ProductStatus{domain.ProductPending, domain.ProductRejected} {
		p := f.seedProduct(uuid.New(), status, "1.00")
		_, err := svc.AddToCart(ctx, u, p.ID, domain.Variant{}, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}

	_, err := svc.AddToCart(ctx, u, uuid.New(), domain.Variant{}, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p := f.seedProduct(uuid.New(), domain.ProductApproved, "1.00")
	_, err = svc.AddToCart(ctx, u, p.ID, domain.Variant{}, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCart_LineOwnership(t *testing.T) {
	f := newFixture()
	svc := f.cart()
	ctx := context.Background()
	owner := session(domain.RoleUser)
	p := f.seedProduct(uuid.New(), domain.ProductApproved, "2.00")

	line, err := svc.AddToCart(ctx, owner, p.ID, domain.Variant{}, 2)
	require.NoError(t, err)

	intruder := session(domain.RoleAdmin)
	assert.ErrorIs(t, svc.RemoveLine(ctx, intruder, line.ID), domain.ErrPermissionDenied)
	_, err = svc.SetQuantity(ctx, intruder, line.ID, 9)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	assert.ErrorIs(t, svc.RemoveLine(ctx, owner, uuid.New()), domain.ErrNotFound)

	require.NoError(t, svc.RemoveLine(ctx, owner, line.ID))
	cart, err := svc.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, cart.Count())
	assert.True(t, cart.Totals.Shipping.IsZero())
}

func TestCart_SetQuantityClampsToOne(t *testing.T) {
	f := newFixture()
	svc := f.cart()
	ctx := context.Background()
	u := session(domain.RoleUser)
	p := f.seedProduct(uuid.New(), domain.ProductApproved, "2.00")

	line, err := svc.AddToCart(ctx, u, p.ID, domain.Variant{}, 4)
	require.NoError(t, err)

	updated, err := svc.SetQuantity(ctx, u, line.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Qty)

	updated, err = svc.SetQuantity(ctx, u, line.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Qty)
}

func TestCart_SnapshotSurvivesCatalogEdits(t *testing.T) {
	f := newFixture()
	svc := f.cart()
	ctx := context.Background()
	u := session(domain.RoleUser)
	p := f.seedProduct(uuid.New(), domain.ProductApproved, "10.00")

	_, err := svc.AddToCart(ctx, u, p.ID, domain.Variant{}, 1)
	require.NoError(t, err)

	p.Price = decimal.RequireFromString("99.00")
	p.Name = "Renamed"
	require.NoError(t, memProducts{f.db}.Update(ctx, p))

	cart, err := svc.GetCart(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "Widget", cart.Lines[0].Snapshot.Name)
	assert.True(t, cart.Lines[0].Snapshot.Price.Equal(decimal.RequireFromString("10.00")))
}
