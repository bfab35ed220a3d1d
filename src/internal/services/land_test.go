package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casapps/landregistry/src/internal/database/models"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/ledger"
	"github.com/casapps/landregistry/src/internal/testutil"
)

func floatPtr(f float64) *float64 { return &f }

func TestLandService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "alice", models.RoleUser)
	admin := testutil.CreateUser(t, env.db, "root", models.RoleAdmin)

	price := decimal.NewFromInt(250000)
	input := LandInput{
		PropertyID:   "LAG-001",
		Title:        "Lagoon View",
		Location:     "Lekki, Lagos",
		Latitude:     floatPtr(6.45),
		Longitude:    floatPtr(3.47),
		Area:         650,
		PropertyType: "residential",
		Price:        &price,
	}

	var land *models.Land

	t.Run("Create", func(t *testing.T) {
		var err error
		land, err = env.lands.Create(ctx, alice.ID, input)
		require.NoError(t, err)
		assert.Equal(t, models.LandStatusPending, land.Status)
		assert.Equal(t, alice.ID, land.OwnerID)
		assert.Equal(t, "alice", land.OwnerUsername)
		assert.True(t, land.Price.Valid)
		assert.False(t, land.IsRegisteredOnBlockchain)

		_, err = env.lands.Create(ctx, alice.ID, input)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	})

	t.Run("CreateValidation", func(t *testing.T) {
		zero := decimal.Zero
		cases := map[string]LandInput{
			"area":          {PropertyID: "X-1", Title: "t", Location: "l", Area: 0, PropertyType: "residential"},
			"property_type": {PropertyID: "X-2", Title: "t", Location: "l", Area: 1, PropertyType: "industrial"},
			"price":         {PropertyID: "X-3", Title: "t", Location: "l", Area: 1, PropertyType: "commercial", Price: &zero},
			"latitude":      {PropertyID: "X-4", Title: "t", Location: "l", Area: 1, PropertyType: "commercial", Latitude: floatPtr(91)},
			"title":         {PropertyID: "X-5", Location: "l", Area: 1, PropertyType: "commercial"},
		}
		for field, in := range cases {
			_, err := env.lands.Create(ctx, alice.ID, in)
			var ce *apperrors.CustomError
			require.ErrorAs(t, err, &ce, field)
			assert.Equal(t, field, ce.Details["field"], field)
		}
	})

	t.Run("ListAndFilters", func(t *testing.T) {
		testutil.CreateLand(t, env.db, alice, testutil.Verified())
		farm := testutil.CreateLand(t, env.db, admin)
		require.NoError(t, env.db.Model(farm).Update("property_type", models.PropertyTypeAgricultural).Error)

		page, err := env.lands.List(ctx, LandFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)

		page, err = env.lands.List(ctx, LandFilter{Search: "lagoon"})
		require.NoError(t, err)
		require.Len(t, page.Lands, 1)
		assert.Equal(t, "LAG-001", page.Lands[0].PropertyID)

		page, err = env.lands.List(ctx, LandFilter{Status: "verified"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)

		page, err = env.lands.List(ctx, LandFilter{PropertyType: "agricultural"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)

		page, err = env.lands.List(ctx, LandFilter{PerPage: 500})
		require.NoError(t, err)
		assert.Equal(t, 100, page.PerPage)

		page, err = env.lands.List(ctx, LandFilter{PerPage: 2, Page: 2})
		require.NoError(t, err)
		assert.Len(t, page.Lands, 1)
		assert.Equal(t, 2, page.Pages)

		mine, err := env.lands.MyLands(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 2)
	})

	t.Run("MapData", func(t *testing.T) {
		all, err := env.lands.MapData(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 1)

		bounds, err := ParseBounds("6,3,7,4")
		require.NoError(t, err)
		inside, err := env.lands.MapData(ctx, bounds)
		require.NoError(t, err)
		assert.Len(t, inside, 1)

		bounds, err = ParseBounds("40,-75,41,-73")
		require.NoError(t, err)
		outside, err := env.lands.MapData(ctx, bounds)
		require.NoError(t, err)
		assert.Empty(t, outside)

		_, err = ParseBounds("1,2,3")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		_, err = ParseBounds("10,0,5,1")
		assert.Error(t, err)
	})

	t.Run("Statistics", func(t *testing.T) {
		stats, err := env.lands.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalLands)
		assert.Equal(t, int64(2), stats.PendingLands)
		assert.Equal(t, int64(1), stats.VerifiedLands)
		assert.Equal(t, int64(1), stats.ByPropertyType["agricultural"])
		assert.True(t, price.Equal(stats.TotalValue), stats.TotalValue.String())
		assert.InDelta(t, 1650, stats.TotalArea, 0.001)

		// cached until a write invalidates it
		testutil.CreateLand(t, env.db, alice)
		cached, err := env.lands.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), cached.TotalLands)

		env.lands.InvalidateStatistics(ctx)
		fresh, err := env.lands.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), fresh.TotalLands)
	})

	t.Run("ReviewAndRegister", func(t *testing.T) {
		_, err := env.lands.Review(ctx, admin.ID, land.ID, "maybe", "")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		_, err = env.lands.RegisterOnBlockchain(ctx, land.ID)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		reviewed, err := env.lands.Review(ctx, admin.ID, land.ID, "approve", "documents check out")
		require.NoError(t, err)
		assert.Equal(t, models.LandStatusVerified, reviewed.Status)
		require.NotNil(t, reviewed.ReviewedBy)
		assert.Equal(t, admin.ID, *reviewed.ReviewedBy)
		assert.Equal(t, "documents check out", reviewed.ReviewComments)

		result, err := env.lands.RegisterOnBlockchain(ctx, land.ID)
		require.NoError(t, err)
		assert.True(t, result.Land.IsRegisteredOnBlockchain)
		require.NotNil(t, result.Land.TokenID)
		assert.Equal(t, result.Receipt.TokenID, *result.Land.TokenID)
		assert.Equal(t, result.Receipt.TxHash, *result.Land.BlockchainTxHash)

		_, err = env.lands.RegisterOnBlockchain(ctx, land.ID)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

		_, err = env.lands.Review(ctx, admin.ID, land.ID, "reject", "")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	})

	t.Run("RejectedLandCannotBeRegistered", func(t *testing.T) {
		pending := testutil.CreateLand(t, env.db, alice)

		rejected, err := env.lands.Review(ctx, admin.ID, pending.ID, "reject", "missing survey plan")
		require.NoError(t, err)
		assert.Equal(t, models.LandStatusRejected, rejected.Status)

		_, err = env.lands.RegisterOnBlockchain(ctx, pending.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		assert.Contains(t, err.Error(), "only verified lands")

		reloaded, err := env.lands.Get(ctx, pending.ID)
		require.NoError(t, err)
		assert.False(t, reloaded.IsRegisteredOnBlockchain)
		assert.Nil(t, reloaded.TokenID)
	})

	t.Run("LedgerFailure", func(t *testing.T) {
		verified := testutil.CreateLand(t, env.db, alice, testutil.Verified())
		env.ledger.SetConnected(false)
		defer env.ledger.SetConnected(true)

		_, err := env.lands.RegisterOnBlockchain(ctx, verified.ID)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))

		reloaded, err := env.lands.Get(ctx, verified.ID)
		require.NoError(t, err)
		assert.False(t, reloaded.IsRegisteredOnBlockchain)
	})
}

func TestReviewAction(t *testing.T) {
	for _, action := range []string{"approve", "verify", "verified", "APPROVE"} {
		status, ok := ReviewAction(action)
		assert.True(t, ok)
		assert.Equal(t, models.LandStatusVerified, status)
	}
	for _, action := range []string{"reject", "rejected"} {
		status, ok := ReviewAction(action)
		assert.True(t, ok)
		assert.Equal(t, models.LandStatusRejected, status)
	}
	_, ok := ReviewAction("pending")
	assert.False(t, ok)
}

// slowLedger counts mints and holds each one for delay
type slowLedger struct {
	ledger.Ledger
	delay  time.Duration
	mints  atomic.Int32
	cancel context.CancelFunc
}

func (l *slowLedger) RegisterLand(ctx context.Context, req ledger.RegisterRequest) (*ledger.Receipt, error) {
	l.mints.Add(1)
	time.Sleep(l.delay)
	receipt, err := l.Ledger.RegisterLand(ctx, req)
	if l.cancel != nil {
		l.cancel()
	}
	return receipt, err
}

func TestRegisterOnBlockchainOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent registrations mint once", func(t *testing.T) {
		env := newTestEnv(t)
		alice := testutil.CreateUser(t, env.db, "alice", models.RoleUser)
		land := testutil.CreateLand(t, env.db, alice, testutil.Verified())

		slow := &slowLedger{Ledger: env.ledger, delay: 50 * time.Millisecond}
		env.lands.ledger = slow

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = env.lands.RegisterOnBlockchain(ctx, land.ID)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), slow.mints.Load())
		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict), err)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("client leaving mid-mint still records the token", func(t *testing.T) {
		env := newTestEnv(t)
		alice := testutil.CreateUser(t, env.db, "alice", models.RoleUser)
		land := testutil.CreateLand(t, env.db, alice, testutil.Verified())

		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		env.lands.ledger = &slowLedger{Ledger: env.ledger, cancel: cancel}

		result, err := env.lands.RegisterOnBlockchain(reqCtx, land.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, result.Receipt.TokenID)

		stored, err := env.lands.Get(ctx, land.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsRegisteredOnBlockchain)
		require.NotNil(t, stored.TokenID)
		assert.Equal(t, result.Receipt.TokenID, *stored.TokenID)
	})
}
