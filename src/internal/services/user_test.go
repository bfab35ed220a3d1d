package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casapps/landregistry/src/internal/database"
	"github.com/casapps/landregistry/src/internal/database/models"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/testutil"
)

func TestUserService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := ClientInfo{IPAddress: "127.0.0.1", UserAgent: "test"}

	t.Run("Register", func(t *testing.T) {
		res, err := env.users.Register(ctx, RegisterInput{
			Username:  "alice",
			Email:     "Alice@Example.com",
			Password:  "supersecret",
			FirstName: "Alice",
		}, client)
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "alice@example.com", res.User.Email)
		assert.Equal(t, models.RoleUser, res.User.Role)
		assert.True(t, strings.HasPrefix(res.User.WalletAddress, "0x"))
		assert.Len(t, res.User.WalletAddress, 42)

		var sessions int64
		require.NoError(t, env.db.Model(&models.Session{}).Where("user_id = ?", res.User.ID).Count(&sessions).Error)
		assert.Equal(t, int64(1), sessions)
	})

	t.Run("RegisterRejectsDuplicates", func(t *testing.T) {
		_, err := env.users.Register(ctx, RegisterInput{Username: "ALICE", Email: "other@example.com", Password: "supersecret"}, client)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

		_, err = env.users.Register(ctx, RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "supersecret"}, client)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	})

	t.Run("RegisterValidation", func(t *testing.T) {
		_, err := env.users.Register(ctx, RegisterInput{Username: "ab", Email: "bad", Password: "x"}, client)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		_, err = env.users.Register(ctx, RegisterInput{Username: "walletuser", Email: "w@example.com", Password: "supersecret", WalletAddress: "not-a-wallet"}, client)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("RegisterWithWallet", func(t *testing.T) {
		wallet := "0x52908400098527886e0f7030069857d2e4169ee7"
		res, err := env.users.Register(ctx, RegisterInput{Username: "carol", Email: "carol@example.com", Password: "supersecret", WalletAddress: wallet}, client)
		require.NoError(t, err)
		assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", res.User.WalletAddress)

		_, err = env.users.Register(ctx, RegisterInput{Username: "carol2", Email: "carol2@example.com", Password: "supersecret", WalletAddress: strings.ToUpper(wallet[2:])}, client)
		assert.Error(t, err)
	})

	t.Run("RegistrationDisabled", func(t *testing.T) {
		env.cfg.Set("features.registration", false)
		defer env.cfg.Set("features.registration", true)

		_, err := env.users.Register(ctx, RegisterInput{Username: "dave", Email: "dave@example.com", Password: "supersecret"}, client)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuthorization))
	})

	t.Run("Login", func(t *testing.T) {
		res, err := env.users.Login(ctx, LoginInput{Username: "alice", Password: "supersecret"}, client)
		require.NoError(t, err)
		assert.Equal(t, "alice", res.User.Username)
		assert.NotNil(t, res.User.LastLoginAt)

		// email works as well
		_, err = env.users.Login(ctx, LoginInput{Username: "ALICE@example.com", Password: "supersecret"}, client)
		require.NoError(t, err)

		_, err = env.users.Login(ctx, LoginInput{Username: "alice", Password: "wrong"}, client)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuthentication))

		_, err = env.users.Login(ctx, LoginInput{Username: "nobody", Password: "wrong"}, client)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuthentication))
	})

	t.Run("SessionLifecycle", func(t *testing.T) {
		res, err := env.users.Login(ctx, LoginInput{Username: "alice", Password: "supersecret"}, client)
		require.NoError(t, err)

		var session models.Session
		require.NoError(t, env.db.Where("user_id = ?", res.User.ID).Order("created_at DESC").First(&session).Error)

		active, err := env.users.SessionActive(ctx, session.TokenID)
		require.NoError(t, err)
		assert.True(t, active)

		require.NoError(t, env.users.Logout(ctx, session.TokenID))
		active, err = env.users.SessionActive(ctx, session.TokenID)
		require.NoError(t, err)
		assert.False(t, active)

		active, err = env.users.SessionActive(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("ProfileAndPassword", func(t *testing.T) {
		var alice models.User
		require.NoError(t, env.db.Where("username = ?", "alice").First(&alice).Error)

		phone := "+234 800 000 0000"
		updated, err := env.users.UpdateProfile(ctx, alice.ID, ProfileUpdate{Phone: &phone})
		require.NoError(t, err)
		assert.Equal(t, phone, updated.Phone)
		assert.Equal(t, "Alice", updated.FirstName)

		taken := "carol@example.com"
		_, err = env.users.UpdateProfile(ctx, alice.ID, ProfileUpdate{Email: &taken})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

		err = env.users.ChangePassword(ctx, alice.ID, PasswordChange{CurrentPassword: "wrong", NewPassword: "newpassword"})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		require.NoError(t, env.users.ChangePassword(ctx, alice.ID, PasswordChange{CurrentPassword: "supersecret", NewPassword: "newpassword"}))
		_, err = env.users.Login(ctx, LoginInput{Username: "alice", Password: "newpassword"}, client)
		assert.NoError(t, err)
	})

	t.Run("ResolveRecipient", func(t *testing.T) {
		var carol models.User
		require.NoError(t, env.db.Where("username = ?", "carol").First(&carol).Error)

		for _, ident := range []string{"carol", "CAROL", "carol@example.com", carol.WalletAddress, strings.ToLower(carol.WalletAddress)} {
			ref, err := env.users.ResolveRecipient(ctx, ident)
			require.NoError(t, err, ident)
			assert.Equal(t, carol.ID, ref.ID)
			assert.Equal(t, "carol", ref.Username)
		}

		_, err := env.users.ResolveRecipient(ctx, "ghost")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

		_, err = env.users.ResolveRecipient(ctx, "  ")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestDemoLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, database.SeedDemoData(env.db, env.cfg))

	res, err := env.users.DemoLogin(ctx, "admin", ClientInfo{})
	require.NoError(t, err)
	assert.True(t, res.User.IsAdmin())

	res, err = env.users.DemoLogin(ctx, "", ClientInfo{})
	require.NoError(t, err)
	assert.Equal(t, "demo", res.User.Username)
	assert.Equal(t, int64(2), res.User.LandCount)

	_, err = env.users.DemoLogin(ctx, "root", ClientInfo{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	env.cfg.Set("features.demo_login", false)
	_, err = env.users.DemoLogin(ctx, "user", ClientInfo{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuthorization))
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, env.db, "root", models.RoleAdmin)
	bob := testutil.CreateUser(t, env.db, "bob", models.RoleUser)
	testutil.CreateUser(t, env.db, "bobby", models.RoleUser)
	testutil.CreateLand(t, env.db, bob)
	testutil.CreateLand(t, env.db, bob)

	t.Run("ListUsers", func(t *testing.T) {
		page, err := env.users.ListUsers(ctx, UserFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, 1, page.Pages)

		page, err = env.users.ListUsers(ctx, UserFilter{Search: "bob"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		for _, u := range page.Users {
			if u.Username == "bob" {
				assert.Equal(t, int64(2), u.LandCount)
			}
		}

		page, err = env.users.ListUsers(ctx, UserFilter{Role: "admin"})
		require.NoError(t, err)
		require.Len(t, page.Users, 1)
		assert.Equal(t, "root", page.Users[0].Username)

		page, err = env.users.ListUsers(ctx, UserFilter{PerPage: 1, Page: 2})
		require.NoError(t, err)
		assert.Len(t, page.Users, 1)
		assert.Equal(t, 3, page.Pages)
	})

	t.Run("SetStatus", func(t *testing.T) {
		res, err := env.users.Login(ctx, LoginInput{Username: "bob", Password: testutil.Password}, ClientInfo{})
		require.NoError(t, err)

		user, err := env.users.SetStatus(ctx, admin.ID, bob.ID, "inactive")
		require.NoError(t, err)
		assert.False(t, user.IsActive)

		// deactivation revokes sessions
		var sessions int64
		require.NoError(t, env.db.Model(&models.Session{}).Where("user_id = ?", res.User.ID).Count(&sessions).Error)
		assert.Zero(t, sessions)

		_, err = env.users.Login(ctx, LoginInput{Username: "bob", Password: testutil.Password}, ClientInfo{})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuthorization))

		page, err := env.users.ListUsers(ctx, UserFilter{Status: "inactive"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)

		_, err = env.users.SetStatus(ctx, admin.ID, bob.ID, "active")
		require.NoError(t, err)

		_, err = env.users.SetStatus(ctx, admin.ID, admin.ID, "inactive")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		_, err = env.users.SetStatus(ctx, admin.ID, bob.ID, "banned")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestTwoFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, env.db, "alice", models.RoleUser)

	err := env.users.EnableTOTP(ctx, user.ID, "123456")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	setup, err := env.users.SetupTOTP(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.URL, "otpauth://")

	assert.Error(t, env.users.EnableTOTP(ctx, user.ID, "000000"))

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.users.EnableTOTP(ctx, user.ID, code))

	_, err = env.users.Login(ctx, LoginInput{Username: "alice", Password: testutil.Password}, ClientInfo{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = env.users.Login(ctx, LoginInput{Username: "alice", Password: testutil.Password, TOTPCode: code}, ClientInfo{})
	require.NoError(t, err)

	_, err = env.users.SetupTOTP(ctx, user.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	require.NoError(t, env.users.DisableTOTP(ctx, user.ID, code))
	_, err = env.users.Login(ctx, LoginInput{Username: "alice", Password: testutil.Password}, ClientInfo{})
	assert.NoError(t, err)
}
