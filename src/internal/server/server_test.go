package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/database"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/ledger"
	"github.com/casapps/landregistry/src/internal/testutil"
	"github.com/casapps/landregistry/src/pkg/utils"
)

type harness struct {
	t      *testing.T
	srv    *Server
	db     *gorm.DB
	ledger *ledger.MemoryLedger
}

func newHarness(t *testing.T, tweak ...func(*viper.Viper)) *harness {
	t.Helper()

	cfg := testutil.NewConfig(t)
	for _, fn := range tweak {
		fn(cfg)
	}
	db := testutil.NewDB(t)
	require.NoError(t, database.SeedDemoData(db, cfg))

	ml := ledger.NewMemoryLedger("testnet")
	srv, err := New(context.Background(), cfg, db, Options{
		Ledger:  ml,
		Logger:  utils.NewLoggerTo(io.Discard, "error"),
		Version: "test",
	})
	require.NoError(t, err)

	return &harness{t: t, srv: srv, db: db, ledger: ml}
}

func (h *harness) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

type authBody struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type errorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details"`
}

func (h *harness) demoLogin(kind string) authBody {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/demo-login", "", map[string]string{"type": kind})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	var body authBody
	decode(h.t, rec, &body)
	require.NotEmpty(h.t, body.Token)
	return body
}

func (h *harness) register(username string) authBody {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":   username,
		"email":      username + "@example.com",
		"password":   testutil.Password,
		"first_name": "Test",
		"last_name":  username,
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())

	var body authBody
	decode(h.t, rec, &body)
	return body
}

func (h *harness) demoLand(propertyID string) *models.Land {
	h.t.Helper()
	var land models.Land
	require.NoError(h.t, h.db.Where("property_id = ?", propertyID).First(&land).Error)
	return &land
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Status     string `json:"status"`
		Version    string `json:"version"`
		Components map[string]struct {
			Status string `json:"status"`
		} `json:"components"`
	}
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, "healthy", health.Components["database"].Status)
	assert.Equal(t, "healthy", health.Components["ledger"].Status)

	h.ledger.SetConnected(false)
	rec = h.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &health)
	assert.Equal(t, "degraded", health.Status)

	rec = h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "landregistry_http_requests_total")
}

func TestAuthRoutes(t *testing.T) {
	h := newHarness(t)

	t.Run("profile requires a token", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/auth/profile", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body errorBody
		decode(t, rec, &body)
		assert.Equal(t, "UNAUTHORIZED", body.Code)
		assert.NotEmpty(t, body.Error)
	})

	t.Run("bad credentials", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "demo",
			"password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("register login profile logout", func(t *testing.T) {
		registered := h.register("carol")
		assert.Equal(t, models.RoleUser, registered.User.Role)
		assert.True(t, strings.HasPrefix(registered.User.WalletAddress, "0x"))

		rec := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "carol@example.com",
			"password": testutil.Password,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var login authBody
		decode(t, rec, &login)

		rec = h.do(http.MethodPut, "/api/auth/profile", login.Token, map[string]string{"phone": "+2348000000000"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var profile struct {
			User *models.User `json:"user"`
		}
		decode(t, rec, &profile)
		assert.Equal(t, "+2348000000000", profile.User.Phone)

		rec = h.do(http.MethodPost, "/api/auth/logout", login.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = h.do(http.MethodGet, "/api/auth/profile", login.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		// the registration session is independent
		rec = h.do(http.MethodGet, "/api/auth/profile", registered.Token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "DEMO",
			"email":    "other@example.com",
			"password": testutil.Password,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("demo login kinds", func(t *testing.T) {
		admin := h.demoLogin("admin")
		assert.Equal(t, models.RoleAdmin, admin.User.Role)

		rec := h.do(http.MethodPost, "/api/auth/demo-login", "", map[string]string{"type": "root"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLandRoutes(t *testing.T) {
	h := newHarness(t)
	user := h.demoLogin("user")

	rec := h.do(http.MethodPost, "/api/lands/", user.Token, map[string]interface{}{
		"property_id":   "LAG-100",
		"title":         "Corner plot",
		"location":      "Yaba, Lagos",
		"latitude":      6.5,
		"longitude":     3.38,
		"area":          420.5,
		"property_type": "commercial",
		"price":         "125000.50",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Land *models.Land `json:"land"`
	}
	decode(t, rec, &created)
	assert.Equal(t, models.LandStatusPending, created.Land.Status)
	assert.Equal(t, "125000.5", created.Land.Price.Decimal.String())

	t.Run("validation", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/lands", user.Token, map[string]interface{}{
			"title": "No property id",
			"area":  10,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body errorBody
		decode(t, rec, &body)
		assert.Equal(t, "VALIDATION_FAILED", body.Code)
		assert.NotEmpty(t, body.Details["field"])
	})

	t.Run("duplicate property id", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/lands", user.Token, map[string]interface{}{
			"property_id":   "LAG-100",
			"title":         "Copy",
			"location":      "Yaba, Lagos",
			"area":          10,
			"property_type": "residential",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("list and get", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/lands/?search=corner&per_page=5", user.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page struct {
			Lands   []models.Land `json:"lands"`
			Total   int64         `json:"total"`
			PerPage int           `json:"per_page"`
			Pages   int           `json:"pages"`
		}
		decode(t, rec, &page)
		require.Len(t, page.Lands, 1)
		assert.Equal(t, int64(1), page.Total)
		assert.Equal(t, 5, page.PerPage)

		rec = h.do(http.MethodGet, "/api/lands/"+created.Land.ID.String(), user.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = h.do(http.MethodGet, "/api/lands/not-a-uuid", user.Token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("my lands map and statistics", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/lands/my-lands", user.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var mine struct {
			Lands []models.Land `json:"lands"`
		}
		decode(t, rec, &mine)
		assert.Len(t, mine.Lands, 3)

		rec = h.do(http.MethodGet, "/api/lands/map-data?bounds=6,3,7,4", user.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var mapData struct {
			Lands []models.Land `json:"lands"`
		}
		decode(t, rec, &mapData)
		assert.Len(t, mapData.Lands, 2)

		rec = h.do(http.MethodGet, "/api/lands/map-data?bounds=north", user.Token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = h.do(http.MethodGet, "/api/lands/statistics", user.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var stats struct {
			TotalLands     int64            `json:"total_lands"`
			PendingLands   int64            `json:"pending_lands"`
			ByPropertyType map[string]int64 `json:"by_property_type"`
		}
		decode(t, rec, &stats)
		assert.Equal(t, int64(3), stats.TotalLands)
		assert.Equal(t, int64(2), stats.PendingLands)
		assert.Equal(t, int64(1), stats.ByPropertyType["commercial"])
	})
}

func TestTransferWorkflow(t *testing.T) {
	h := newHarness(t)
	owner := h.demoLogin("user")
	admin := h.demoLogin("admin")
	bob := h.register("bob")
	land := h.demoLand("DEMO-0001")

	initiatePath := fmt.Sprintf("/api/lands/%s/transfer/initiate", land.ID)
	offer := map[string]interface{}{"to_user": "bob", "price": 1000, "transfer_type": "sale"}

	// not on chain yet
	rec := h.do(http.MethodPost, initiatePath, owner.Token, offer)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, fmt.Sprintf("/api/admin/lands/%s/register-blockchain", land.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var registration struct {
		Land    *models.Land    `json:"land"`
		Receipt *ledger.Receipt `json:"receipt"`
	}
	decode(t, rec, &registration)
	assert.True(t, registration.Land.IsRegisteredOnBlockchain)
	require.NotNil(t, registration.Receipt)

	// only the owner may initiate
	rec = h.do(http.MethodPost, initiatePath, bob.Token, map[string]interface{}{"to_user": "demo", "price": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, initiatePath, owner.Token, offer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var initiated struct {
		Transfer *models.Transfer `json:"transfer"`
	}
	decode(t, rec, &initiated)
	assert.Equal(t, models.TransferStatusPending, initiated.Transfer.Status)
	assert.Equal(t, bob.User.ID, initiated.Transfer.ToUserID)

	// one active transfer per land
	rec = h.do(http.MethodPost, initiatePath, owner.Token, offer)
	assert.Equal(t, http.StatusConflict, rec.Code)

	transferPath := fmt.Sprintf("/api/lands/%s/transfer/%s", land.ID, initiated.Transfer.ID)

	rec = h.do(http.MethodPost, transferPath+"/execute", bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, transferPath+"/execute", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var executed struct {
		Transfer *models.Transfer `json:"transfer"`
	}
	decode(t, rec, &executed)
	assert.Equal(t, models.TransferStatusCompleted, executed.Transfer.Status)
	require.NotNil(t, executed.Transfer.BlockchainTxHash)
	assert.NotNil(t, executed.Transfer.CompletedAt)

	// executing twice is a conflict, not a second transfer
	rec = h.do(http.MethodPost, transferPath+"/execute", owner.Token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodGet, "/api/lands/"+land.ID.String(), bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var after struct {
		Land *models.Land `json:"land"`
	}
	decode(t, rec, &after)
	assert.Equal(t, bob.User.ID, after.Land.OwnerID)
	assert.Equal(t, "1000", after.Land.Price.Decimal.String())

	rec = h.do(http.MethodGet, "/api/lands/transfers?type=received", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var received struct {
		Transfers []models.Transfer `json:"transfers"`
	}
	decode(t, rec, &received)
	require.Len(t, received.Transfers, 1)
	assert.Equal(t, executed.Transfer.ID, received.Transfers[0].ID)

	rec = h.do(http.MethodGet, "/api/lands/transfers?type=sideways", bob.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/lands/"+land.ID.String()+"/transfer-history", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		DatabaseTransfers   []models.Transfer `json:"database_transfers"`
		BlockchainTransfers []ledger.LogEntry `json:"blockchain_transfers"`
		BlockchainError     string            `json:"blockchain_error"`
	}
	decode(t, rec, &history)
	assert.Len(t, history.DatabaseTransfers, 1)
	assert.NotEmpty(t, history.BlockchainTransfers)
	assert.Empty(t, history.BlockchainError)
}

func TestTransferCancelAndLedgerFailure(t *testing.T) {
	h := newHarness(t)
	owner := h.demoLogin("user")
	admin := h.demoLogin("admin")
	h.register("dave")
	land := h.demoLand("DEMO-0001")

	rec := h.do(http.MethodPost, fmt.Sprintf("/api/admin/lands/%s/register-blockchain", land.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	initiate := func() *models.Transfer {
		rec := h.do(http.MethodPost, fmt.Sprintf("/api/lands/%s/transfer/initiate", land.ID), owner.Token,
			map[string]interface{}{"to_user": "dave@example.com", "transfer_type": "gift"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var body struct {
			Transfer *models.Transfer `json:"transfer"`
		}
		decode(t, rec, &body)
		return body.Transfer
	}

	first := initiate()
	rec = h.do(http.MethodPost, fmt.Sprintf("/api/lands/%s/transfer/%s/cancel", land.ID, first.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled struct {
		Transfer *models.Transfer `json:"transfer"`
	}
	decode(t, rec, &cancelled)
	assert.Equal(t, models.TransferStatusCancelled, cancelled.Transfer.Status)

	// a cancelled transfer frees the land
	second := initiate()
	h.ledger.FailNext(ledger.ErrUnavailable)

	rec = h.do(http.MethodPost, fmt.Sprintf("/api/lands/%s/transfer/%s/execute", land.ID, second.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var failed struct {
		Transfer *models.Transfer `json:"transfer"`
	}
	decode(t, rec, &failed)
	assert.Equal(t, models.TransferStatusFailed, failed.Transfer.Status)
	assert.Nil(t, failed.Transfer.BlockchainTxHash)
	require.NotNil(t, failed.Transfer.FailureReason)

	rec = h.do(http.MethodGet, "/api/lands/"+land.ID.String(), owner.Token, nil)
	var still struct {
		Land *models.Land `json:"land"`
	}
	decode(t, rec, &still)
	assert.Equal(t, owner.User.ID, still.Land.OwnerID)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	user := h.demoLogin("user")
	admin := h.demoLogin("admin")

	t.Run("admin only", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/admin/dashboard", user.Token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("dashboard and listings", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/admin/dashboard", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = h.do(http.MethodGet, "/api/admin/users?role=admin", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var users struct {
			Users []models.User `json:"users"`
			Total int64         `json:"total"`
		}
		decode(t, rec, &users)
		require.Len(t, users.Users, 1)
		assert.Equal(t, "demoadmin", users.Users[0].Username)

		rec = h.do(http.MethodGet, "/api/admin/lands/pending", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var pending struct {
			Lands []models.Land `json:"lands"`
		}
		decode(t, rec, &pending)
		assert.Len(t, pending.Lands, 1)

		rec = h.do(http.MethodGet, "/api/admin/lands/all?status=verified", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = h.do(http.MethodGet, "/api/admin/transfers", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = h.do(http.MethodGet, "/api/admin/blockchain/status", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var status ledger.Status
		decode(t, rec, &status)
		assert.True(t, status.Connected)
		assert.Equal(t, "testnet", status.Network)
	})

	t.Run("review", func(t *testing.T) {
		land := h.demoLand("DEMO-0002")
		path := fmt.Sprintf("/api/admin/lands/%s/review", land.ID)

		rec := h.do(http.MethodPost, path, admin.Token, map[string]string{"action": "maybe"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = h.do(http.MethodPost, path, admin.Token, map[string]string{"action": "approve", "comments": "deeds checked"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var reviewed struct {
			Land *models.Land `json:"land"`
		}
		decode(t, rec, &reviewed)
		assert.Equal(t, models.LandStatusVerified, reviewed.Land.Status)
		assert.Equal(t, "deeds checked", reviewed.Land.ReviewComments)
	})

	t.Run("user status", func(t *testing.T) {
		path := fmt.Sprintf("/api/admin/users/%s/status", user.User.ID)

		rec := h.do(http.MethodPost, path, admin.Token, map[string]string{"status": "frozen"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = h.do(http.MethodPost, path, admin.Token, map[string]string{"status": "inactive"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// deactivation revokes the user's sessions
		rec = h.do(http.MethodGet, "/api/auth/profile", user.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = h.do(http.MethodPost, fmt.Sprintf("/api/admin/users/%s/status", admin.User.ID), admin.Token, map[string]string{"status": "inactive"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reports", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/admin/reports/properties", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t,
			fmt.Sprintf("attachment; filename=properties-report-%s.csv", time.Now().Format("2006-01-02")),
			rec.Header().Get("Content-Disposition"))
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
		assert.Contains(t, rec.Body.String(), "DEMO-0001")

		rec = h.do(http.MethodGet, "/api/admin/reports/land-distribution", admin.Token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("audit trail", func(t *testing.T) {
		land := h.demoLand("DEMO-0002")

		rec := h.do(http.MethodGet, "/api/admin/audit?action=land.review", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var trail struct {
			Entries []models.AuditLog `json:"entries"`
			Total   int64             `json:"total"`
		}
		decode(t, rec, &trail)
		// the rejected "maybe" action is kept alongside the approval
		require.Equal(t, int64(2), trail.Total)
		for _, e := range trail.Entries {
			assert.Equal(t, land.ID.String(), e.ResourceID)
			assert.Equal(t, "demoadmin", e.Username)
		}

		rec = h.do(http.MethodGet, "/api/admin/audit?action=land.review&success=true", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &trail)
		assert.Equal(t, int64(1), trail.Total)

		rec = h.do(http.MethodGet, "/api/admin/audit?action=report.download", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &trail)
		assert.Equal(t, int64(2), trail.Total)

		rec = h.do(http.MethodGet, "/api/admin/audit?user_id=nobody", admin.Token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(cfg *viper.Viper) {
		cfg.Set("ratelimit.enabled", true)
		cfg.Set("ratelimit.anonymous_api", 1)
	})

	creds := map[string]string{"username": "demo", "password": "wrong-password"}
	rec := h.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "RATE_LIMITED", body.Code)
}

func TestCORS(t *testing.T) {
	h := newHarness(t, func(cfg *viper.Viper) {
		cfg.Set("cors.allowed_origins", []string{"https://registry.example.com"})
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://registry.example.com")
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://registry.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/lands", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, func(cfg *viper.Viper) {
		cfg.Set("transfers.reconcile_schedule", "whenever")
	})
	assert.Error(t, h.srv.Start("127.0.0.1:0"))
}
