package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ListNewestFirst(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, log.Record(ctx, &Entry{Action: ActionProductApproved, EntityID: "p1", CreatedAt: base}))
	require.NoError(t, log.Record(ctx, &Entry{Action: ActionProductDeleted, EntityID: "p1", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, log.Record(ctx, &Entry{Action: ActionRoleChanged, EntityID: "u1"}))

	entries, err := log.List(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionProductDeleted, entries[0].Action)

	limited, err := log.List(ctx, "p1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
