package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/testutil"
)

func TestAdminService(t *testing.T) {
	ctx := context.Background()
	f := newTransferFixture(t)
	testutil.CreateUser(t, f.db, "root", models.RoleAdmin)
	testutil.CreateLand(t, f.db, f.bob)

	_, err := f.transfers.Initiate(ctx, f.alice.ID, f.land.ID, f.sale(100000))
	require.NoError(t, err)

	t.Run("Dashboard", func(t *testing.T) {
		dash, err := f.admin.Dashboard(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), dash.Lands.TotalLands)
		assert.Equal(t, int64(1), dash.Lands.BlockchainLands)
		assert.Equal(t, int64(3), dash.Users.Total)
		assert.Equal(t, int64(1), dash.Users.Admins)
		assert.Equal(t, int64(1), dash.Transfers["pending"])
		assert.Zero(t, dash.Transfers["completed"])
		assert.Len(t, dash.PendingLands, 1)
		require.Len(t, dash.RecentTransfers, 1)
		assert.Equal(t, "bob", dash.RecentTransfers[0].ToUsername)

		// served from cache
		cached, err := f.admin.Dashboard(ctx)
		require.NoError(t, err)
		assert.Equal(t, dash.Users, cached.Users)
		assert.Equal(t, "bob", cached.RecentTransfers[0].ToUsername)
	})

	t.Run("BlockchainStatus", func(t *testing.T) {
		status := f.admin.BlockchainStatus(ctx)
		assert.True(t, status.Connected)
		assert.Equal(t, "testnet", status.Network)

		f.ledger.SetConnected(false)
		defer f.ledger.SetConnected(true)
		assert.False(t, f.admin.BlockchainStatus(ctx).Connected)
	})
}
