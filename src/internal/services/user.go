package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/cache"
	"github.com/casapps/landregistry/src/internal/database/models"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/ledger"
)

// UserService handles accounts, sessions and recipient lookup
type UserService struct {
	db    *gorm.DB
	cfg   *viper.Viper
	cache *cache.CacheManager
	auth  *auth.AuthService
	totp  *auth.TOTPService
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, cfg *viper.Viper, cacheManager *cache.CacheManager, authService *auth.AuthService, totpService *auth.TOTPService) *UserService {
	return &UserService{
		db:    db,
		cfg:   cfg,
		cache: cacheManager,
		auth:  authService,
		totp:  totpService,
	}
}

// RegisterInput is the payload of a registration
type RegisterInput struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	WalletAddress string `json:"wallet_address"`
}

// LoginInput accepts a username or an email address
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// ClientInfo identifies the client a session is opened for
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// AuthResult is returned by every successful sign-in
type AuthResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// ProfileUpdate holds the editable profile fields; nil fields are unchanged
type ProfileUpdate struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

// PasswordChange is the payload of a password change
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UserRef is a resolved transfer recipient
type UserRef struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	WalletAddress string    `json:"wallet_address"`
}

// UserFilter narrows the admin user listing
type UserFilter struct {
	Search  string
	Role    string
	Status  string
	Page    int
	PerPage int
}

// UserPage is one page of users
type UserPage struct {
	Users []models.User `json:"users"`
	Page
}

// Register creates an account and signs it in
func (s *UserService) Register(ctx context.Context, in RegisterInput, client ClientInfo) (*AuthResult, error) {
	if !s.cfg.GetBool("features.registration") {
		return nil, apperrors.ForbiddenError("registration is disabled")
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	v := apperrors.NewValidator().
		Required("username", in.Username).
		Username("username", in.Username).
		Required("email", in.Email).
		Email("email", in.Email).
		Password("password", in.Password, s.cfg.GetInt("security.password_min_length")).
		MaxLength("first_name", in.FirstName, 100).
		MaxLength("last_name", in.LastName, 100).
		MaxLength("phone", in.Phone, 40).
		MaxLength("address", in.Address, 500)
	if err := v.Err(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("LOWER(username) = ?", strings.ToLower(in.Username)).Count(&count).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to check username", err)
	}
	if count > 0 {
		return nil, apperrors.ConflictError("username already exists", "user").WithDetail("field", "username")
	}
	if err := db.Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to check email", err)
	}
	if count > 0 {
		return nil, apperrors.ConflictError("email already exists", "user").WithDetail("field", "email")
	}

	wallet, err := s.assignWallet(ctx, in.WalletAddress)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:      in.Username,
		Email:         in.Email,
		PasswordHash:  hash,
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		Phone:         strings.TrimSpace(in.Phone),
		Address:       strings.TrimSpace(in.Address),
		Role:          models.RoleUser,
		WalletAddress: wallet,
		IsActive:      true,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, apperrors.FromDB(err, "User", "")
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	return s.openSession(ctx, user, client)
}

func (s *UserService) assignWallet(ctx context.Context, supplied string) (string, error) {
	if strings.TrimSpace(supplied) == "" {
		return ledger.NewWalletAddress()
	}

	wallet, err := ledger.NormalizeAddress(strings.TrimSpace(supplied))
	if err != nil {
		return "", apperrors.NewValidationError("wallet_address must be a 0x-prefixed 20 byte hex address", "wallet_address")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("LOWER(wallet_address) = ?", strings.ToLower(wallet)).Count(&count).Error; err != nil {
		return "", apperrors.DatabaseError("failed to check wallet address", err)
	}
	if count > 0 {
		return "", apperrors.ConflictError("wallet address already registered", "user").WithDetail("field", "wallet_address")
	}
	return wallet, nil
}

// Login signs a user in with a username or email and password
func (s *UserService) Login(ctx context.Context, in LoginInput, client ClientInfo) (*AuthResult, error) {
	ident := strings.TrimSpace(in.Username)
	if ident == "" || in.Password == "" {
		return nil, apperrors.NewValidationError("username and password are required", "username")
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = ? OR email = ?", strings.ToLower(ident), strings.ToLower(ident)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.UnauthorizedError("invalid username or password")
	}
	if err != nil {
		return nil, apperrors.DatabaseError("failed to look up user", err)
	}

	if !auth.CheckPasswordHash(in.Password, user.PasswordHash) {
		return nil, apperrors.UnauthorizedError("invalid username or password")
	}
	if !user.IsActive {
		return nil, apperrors.ForbiddenError("account is deactivated")
	}
	if user.TwoFactorEnabled {
		if in.TOTPCode == "" {
			return nil, apperrors.NewValidationError("two-factor code required", "totp_code").WithDetail("two_factor_required", true)
		}
		if !s.totp.ValidateTOTP(user.TwoFactorSecret, in.TOTPCode) {
			return nil, apperrors.UnauthorizedError("invalid two-factor code")
		}
	}

	return s.openSession(ctx, &user, client)
}

// DemoLogin signs in one of the seeded demo accounts
func (s *UserService) DemoLogin(ctx context.Context, kind string, client ClientInfo) (*AuthResult, error) {
	if !s.cfg.GetBool("features.demo_login") {
		return nil, apperrors.ForbiddenError("demo login is disabled")
	}
	if kind == "" {
		kind = string(models.RoleUser)
	}
	if kind != string(models.RoleUser) && kind != string(models.RoleAdmin) {
		return nil, apperrors.NewValidationError("type must be user or admin", "type")
	}

	username := s.cfg.GetString("demo." + kind + ".username")
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, apperrors.FromDB(err, "Demo account", username)
	}
	if !user.IsActive {
		return nil, apperrors.ForbiddenError("account is deactivated")
	}

	return s.openSession(ctx, &user, client)
}

func (s *UserService) openSession(ctx context.Context, user *models.User, client ClientInfo) (*AuthResult, error) {
	token, err := s.auth.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &models.Session{
		UserID:    user.ID,
		TokenID:   token.TokenID,
		IPAddress: client.IPAddress,
		UserAgent: truncate(client.UserAgent, 500),
		ExpiresAt: token.ExpiresAt.UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		return tx.Model(user).Update("last_login_at", now).Error
	})
	if err != nil {
		return nil, apperrors.DatabaseError("failed to open session", err)
	}
	user.LastLoginAt = &now

	if err := s.attachLandCount(ctx, user); err != nil {
		return nil, err
	}

	return &AuthResult{
		Token:     token.AccessToken,
		ExpiresAt: token.ExpiresAt,
		User:      user,
	}, nil
}

// Logout revokes the session behind tokenID
func (s *UserService) Logout(ctx context.Context, tokenID string) error {
	if err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).Delete(&models.Session{}).Error; err != nil {
		return apperrors.DatabaseError("failed to revoke session", err)
	}
	if err := s.cache.Delete(ctx, cache.SessionKey(tokenID)); err != nil {
		slog.Warn("failed to evict session from cache", "error", err)
	}
	return nil
}

// SessionActive reports whether the session behind tokenID is still open
func (s *UserService) SessionActive(ctx context.Context, tokenID string) (bool, error) {
	key := cache.SessionKey(tokenID)
	if v, err := s.cache.Get(ctx, key); err == nil && v == "1" {
		return true, nil
	}

	var session models.Session
	err := s.db.WithContext(ctx).
		Where("token_id = ? AND expires_at > ?", tokenID, time.Now().UTC()).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ttl := s.cfg.GetDuration("cache.session_ttl")
	if remaining := time.Until(session.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl > 0 {
		s.cache.Set(ctx, key, "1", ttl)
	}
	return true, nil
}

// PurgeExpiredSessions deletes sessions past their expiry
func (s *UserService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now().UTC()).Delete(&models.Session{})
	return result.RowsAffected, result.Error
}

// GetUser returns a user with its land count
func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, apperrors.FromDB(err, "User", userID.String())
	}
	if err := s.attachLandCount(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile applies the supplied profile fields
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	v := apperrors.NewValidator()

	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		v.Required("email", email).Email("email", email)
		if email != user.Email {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ? AND id <> ?", email, userID).Count(&count).Error; err != nil {
				return nil, apperrors.DatabaseError("failed to check email", err)
			}
			if count > 0 {
				return nil, apperrors.ConflictError("email already exists", "user").WithDetail("field", "email")
			}
		}
		updates["email"] = email
	}
	fields := []struct {
		name  string
		value *string
		max   int
	}{
		{"first_name", in.FirstName, 100},
		{"last_name", in.LastName, 100},
		{"phone", in.Phone, 40},
		{"address", in.Address, 500},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		value := strings.TrimSpace(*f.value)
		v.MaxLength(f.name, value, f.max)
		updates[f.name] = value
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, apperrors.FromDB(err, "User", userID.String())
		}
	}
	return s.GetUser(ctx, userID)
}

// ChangePassword replaces the password after checking the current one
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, in PasswordChange) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return apperrors.FromDB(err, "User", userID.String())
	}

	if !auth.CheckPasswordHash(in.CurrentPassword, user.PasswordHash) {
		return apperrors.NewValidationError("current password is incorrect", "current_password")
	}
	if err := apperrors.NewValidator().
		Password("new_password", in.NewPassword, s.cfg.GetInt("security.password_min_length")).
		Err(); err != nil {
		return err
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("password_hash", hash).Error; err != nil {
		return apperrors.DatabaseError("failed to update password", err)
	}
	return nil
}

// ResolveRecipient finds a user by username, email or wallet address
func (s *UserService) ResolveRecipient(ctx context.Context, ident string) (*UserRef, error) {
	user, err := s.findRecipient(ctx, ident)
	if err != nil {
		return nil, err
	}

	return &UserRef{
		ID:            user.ID,
		Username:      user.Username,
		WalletAddress: user.WalletAddress,
	}, nil
}

func (s *UserService) findRecipient(ctx context.Context, ident string) (*models.User, error) {
	ident = strings.ToLower(strings.TrimSpace(ident))
	if ident == "" {
		return nil, apperrors.NewValidationError("recipient is required", "to_user")
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = ? OR email = ? OR LOWER(wallet_address) = ?", ident, ident, ident).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundError("Recipient", "").WithDetail("field", "to_user")
		}
		return nil, apperrors.DatabaseError("failed to resolve recipient", err)
	}
	return &user, nil
}

// ListUsers returns a page of users for the admin console
func (s *UserService) ListUsers(ctx context.Context, f UserFilter) (*UserPage, error) {
	page, perPage := normalizePage(f.Page, f.PerPage)
	query := s.db.WithContext(ctx).Model(&models.User{})

	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(username) LIKE ? OR email LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like, like)
	}
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	switch f.Status {
	case "active":
		query = query.Where("is_active = ?", true)
	case "inactive":
		query = query.Where("is_active = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to count users", err)
	}

	users := []models.User{}
	if err := query.Order("created_at DESC").Offset(offset(page, perPage)).Limit(perPage).Find(&users).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to list users", err)
	}
	if err := s.attachLandCounts(ctx, users); err != nil {
		return nil, err
	}

	return &UserPage{Users: users, Page: newPage(total, page, perPage)}, nil
}

// SetStatus activates or deactivates an account. Deactivation revokes the
// user's sessions.
func (s *UserService) SetStatus(ctx context.Context, adminID, userID uuid.UUID, status string) (*models.User, error) {
	var active bool
	switch status {
	case "active":
		active = true
	case "inactive":
		active = false
	default:
		return nil, apperrors.NewValidationError("status must be active or inactive", "status")
	}
	if !active && adminID == userID {
		return nil, apperrors.NewValidationError("you cannot deactivate your own account", "status")
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("is_active", active).Error; err != nil {
			return err
		}
		if active {
			return nil
		}
		var tokenIDs []string
		if err := tx.Model(&models.Session{}).Where("user_id = ?", userID).Pluck("token_id", &tokenIDs).Error; err != nil {
			return err
		}
		for _, id := range tokenIDs {
			s.cache.Delete(ctx, cache.SessionKey(id))
		}
		return tx.Where("user_id = ?", userID).Delete(&models.Session{}).Error
	})
	if err != nil {
		return nil, apperrors.DatabaseError("failed to update user status", err)
	}

	user.IsActive = active
	slog.Info("user status changed", "user_id", userID, "active", active, "admin_id", adminID)
	return user, nil
}

// SetupTOTP generates a new, not yet enabled, two-factor secret
func (s *UserService) SetupTOTP(ctx context.Context, userID uuid.UUID) (*auth.TOTPSetup, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, apperrors.ConflictError("two-factor authentication is already enabled", "user")
	}

	setup, err := s.totp.GenerateTOTP(user.Email)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("two_factor_secret", setup.Secret).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to store two-factor secret", err)
	}
	return setup, nil
}

// EnableTOTP turns on two-factor authentication once code proves the setup
func (s *UserService) EnableTOTP(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorSecret == "" {
		return apperrors.NewValidationError("two-factor setup has not been started", "code")
	}
	if !s.totp.ValidateTOTP(user.TwoFactorSecret, code) {
		return apperrors.NewValidationError("invalid two-factor code", "code")
	}
	return s.db.WithContext(ctx).Model(user).Update("two_factor_enabled", true).Error
}

// DisableTOTP turns off two-factor authentication
func (s *UserService) DisableTOTP(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return apperrors.NewValidationError("two-factor authentication is not enabled", "code")
	}
	if !s.totp.ValidateTOTP(user.TwoFactorSecret, code) {
		return apperrors.NewValidationError("invalid two-factor code", "code")
	}
	return s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	}).Error
}

func (s *UserService) attachLandCount(ctx context.Context, user *models.User) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Land{}).Where("owner_id = ?", user.ID).Count(&count).Error; err != nil {
		return apperrors.DatabaseError("failed to count lands", err)
	}
	user.LandCount = count
	return nil
}

func (s *UserService) attachLandCounts(ctx context.Context, users []models.User) error {
	if len(users) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}

	var rows []struct {
		OwnerID uuid.UUID
		Count   int64
	}
	err := s.db.WithContext(ctx).Model(&models.Land{}).
		Select("owner_id, COUNT(*) AS count").
		Where("owner_id IN ?", ids).
		Group("owner_id").
		Scan(&rows).Error
	if err != nil {
		return apperrors.DatabaseError("failed to count lands", err)
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		counts[r.OwnerID] = r.Count
	}
	for i := range users {
		users[i].LandCount = counts[users[i].ID]
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
