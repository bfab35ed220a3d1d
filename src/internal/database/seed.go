package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// SeedDemoData creates the demo accounts behind demo login and a few sample
// lands. Existing rows are left untouched.
func SeedDemoData(db *gorm.DB, cfg *viper.Viper) error {
	demoUser, err := seedUser(db, models.User{
		Username:  cfg.GetString("demo.user.username"),
		Email:     cfg.GetString("demo.user.username") + "@demo.landregistry.local",
		FirstName: "Demo",
		LastName:  "User",
		Role:      models.RoleUser,
	}, cfg.GetString("demo.user.password"))
	if err != nil {
		return err
	}

	if _, err := seedUser(db, models.User{
		Username:  cfg.GetString("demo.admin.username"),
		Email:     cfg.GetString("demo.admin.username") + "@demo.landregistry.local",
		FirstName: "Demo",
		LastName:  "Admin",
		Role:      models.RoleAdmin,
	}, cfg.GetString("demo.admin.password")); err != nil {
		return err
	}

	lat, lng := 6.5244, 3.3792
	samples := []models.Land{
		{
			PropertyID:   "DEMO-0001",
			Title:        "Lagoon View Residence",
			Description:  "Three bedroom residence with lagoon frontage",
			Location:     "Lekki Phase 1, Lagos",
			Latitude:     &lat,
			Longitude:    &lng,
			Area:         650,
			PropertyType: models.PropertyTypeResidential,
			Price:        decimal.NewNullDecimal(decimal.NewFromInt(250000)),
			Status:       models.LandStatusVerified,
		},
		{
			PropertyID:   "DEMO-0002",
			Title:        "Riverside Farmland",
			Location:     "Ikorodu, Lagos",
			Area:         12000,
			PropertyType: models.PropertyTypeAgricultural,
			Status:       models.LandStatusPending,
		},
	}

	for _, land := range samples {
		var count int64
		if err := db.Model(&models.Land{}).Where("property_id = ?", land.PropertyID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up land %s: %w", land.PropertyID, err)
		}
		if count > 0 {
			continue
		}

		land.OwnerID = demoUser.ID
		if err := db.Create(&land).Error; err != nil {
			return fmt.Errorf("failed to seed land %s: %w", land.PropertyID, err)
		}
	}

	return nil
}

func seedUser(db *gorm.DB, user models.User, password string) (*models.User, error) {
	var existing models.User
	err := db.Where("username = ?", user.Username).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up %s: %w", user.Username, err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash demo password: %w", err)
	}
	wallet, err := ledger.NewWalletAddress()
	if err != nil {
		return nil, err
	}

	user.PasswordHash = hash
	user.WalletAddress = wallet
	user.IsActive = true
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create demo user %s: %w", user.Username, err)
	}

	slog.Info("seeded demo account", "username", user.Username, "role", user.Role)
	return &user, nil
}
