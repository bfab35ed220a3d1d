package services

import (
	"sync"
	"testing"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/cache"
	"github.com/casapps/landregistry/src/internal/ledger"
	"github.com/casapps/landregistry/src/internal/testutil"
)

type recordingRecorder struct {
	mu          sync.Mutex
	transitions []string
}

func (r *recordingRecorder) RecordTransition(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, status)
}

func (r *recordingRecorder) count(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.transitions {
		if s == status {
			n++
		}
	}
	return n
}

type testEnv struct {
	db        *gorm.DB
	cfg       *viper.Viper
	cache     *cache.CacheManager
	ledger    *ledger.MemoryLedger
	recorder  *recordingRecorder
	users     *UserService
	lands     *LandService
	transfers *TransferService
	admin     *AdminService
	reports   *ReportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:       testutil.NewDB(t),
		cfg:      testutil.NewConfig(t),
		ledger:   ledger.NewMemoryLedger("testnet"),
		recorder: &recordingRecorder{},
	}
	env.cache = cache.NewCacheManager(env.cfg)
	authService := auth.NewAuthService(env.cfg.GetString("security.secret_key"), "landregistry", env.cfg.GetDuration("security.token_ttl"))

	env.users = NewUserService(env.db, env.cfg, env.cache, authService, auth.NewTOTPService("landregistry"))
	env.lands = NewLandService(env.db, env.cfg, env.cache, env.ledger)
	env.transfers = NewTransferService(env.db, env.cfg, env.ledger, env.users, env.lands, nil, env.recorder)
	env.admin = NewAdminService(env.db, env.cfg, env.cache, env.lands, env.ledger)
	env.reports = NewReportService(env.db)
	return env
}
