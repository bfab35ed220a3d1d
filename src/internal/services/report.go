package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/database/models"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
)

// ReportService renders CSV reports for administrators
type ReportService struct {
	db *gorm.DB
}

// NewReportService creates a new report service
func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

type reportFunc func(s *ReportService, ctx context.Context, w *csv.Writer) error

var reports = map[string]reportFunc{
	"properties":              landReport(""),
	"verified-properties":     landReport(models.LandStatusVerified),
	"pending-properties":      landReport(models.LandStatusPending),
	"users":                   (*ReportService).users,
	"user-activity":           (*ReportService).userActivity,
	"user-properties":         (*ReportService).userProperties,
	"blockchain-transactions": (*ReportService).blockchainTransactions,
	"transfer-history":        (*ReportService).transferHistory,
	"ownership-history":       (*ReportService).ownershipHistory,
}

// ReportTypes lists the available reports
func ReportTypes() []string {
	types := make([]string, 0, len(reports))
	for t := range reports {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ReportFilename is the download name of a report generated at t
func ReportFilename(reportType string, t time.Time) string {
	return fmt.Sprintf("%s-report-%s.csv", reportType, t.UTC().Format("2006-01-02"))
}

// Generate writes the named report to w
func (s *ReportService) Generate(ctx context.Context, reportType string, w io.Writer) error {
	fn, ok := reports[reportType]
	if !ok {
		return apperrors.NotFoundError("Report", reportType)
	}

	cw := csv.NewWriter(w)
	if err := fn(s, ctx, cw); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func landReport(status models.LandStatus) reportFunc {
	return func(s *ReportService, ctx context.Context, w *csv.Writer) error {
		query := s.db.WithContext(ctx).Preload("Owner").Order("created_at ASC")
		if status != "" {
			query = query.Where("status = ?", status)
		}

		var lands []models.Land
		if err := query.Find(&lands).Error; err != nil {
			return apperrors.DatabaseError("failed to load lands", err)
		}

		w.Write([]string{"property_id", "title", "location", "property_type", "area", "price", "status", "owner", "on_blockchain", "token_id", "created_at"})
		for _, l := range lands {
			w.Write([]string{
				l.PropertyID,
				l.Title,
				l.Location,
				string(l.PropertyType),
				formatFloat(l.Area),
				formatNullPrice(l),
				string(l.Status),
				l.OwnerUsername,
				strconv.FormatBool(l.IsRegisteredOnBlockchain),
				derefString(l.TokenID),
				formatTime(&l.CreatedAt),
			})
		}
		return nil
	}
}

func (s *ReportService) users(ctx context.Context, w *csv.Writer) error {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		return apperrors.DatabaseError("failed to load users", err)
	}
	counts, err := s.landCounts(ctx)
	if err != nil {
		return err
	}

	w.Write([]string{"username", "email", "first_name", "last_name", "role", "active", "wallet_address", "land_count", "created_at", "last_login_at"})
	for _, u := range users {
		w.Write([]string{
			u.Username,
			u.Email,
			u.FirstName,
			u.LastName,
			string(u.Role),
			strconv.FormatBool(u.IsActive),
			u.WalletAddress,
			strconv.FormatInt(counts[u.ID.String()], 10),
			formatTime(&u.CreatedAt),
			formatTime(u.LastLoginAt),
		})
	}
	return nil
}

func (s *ReportService) userActivity(ctx context.Context, w *csv.Writer) error {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return apperrors.DatabaseError("failed to load users", err)
	}
	lands, err := s.landCounts(ctx)
	if err != nil {
		return err
	}
	sent, err := s.groupCount(ctx, &models.Transfer{}, "from_user_id")
	if err != nil {
		return err
	}
	received, err := s.groupCount(ctx, &models.Transfer{}, "to_user_id")
	if err != nil {
		return err
	}

	w.Write([]string{"username", "role", "active", "lands_owned", "transfers_sent", "transfers_received", "last_login_at"})
	for _, u := range users {
		id := u.ID.String()
		w.Write([]string{
			u.Username,
			string(u.Role),
			strconv.FormatBool(u.IsActive),
			strconv.FormatInt(lands[id], 10),
			strconv.FormatInt(sent[id], 10),
			strconv.FormatInt(received[id], 10),
			formatTime(u.LastLoginAt),
		})
	}
	return nil
}

func (s *ReportService) userProperties(ctx context.Context, w *csv.Writer) error {
	var lands []models.Land
	if err := s.db.WithContext(ctx).Preload("Owner").Find(&lands).Error; err != nil {
		return apperrors.DatabaseError("failed to load lands", err)
	}
	sort.SliceStable(lands, func(i, j int) bool {
		if lands[i].OwnerUsername != lands[j].OwnerUsername {
			return lands[i].OwnerUsername < lands[j].OwnerUsername
		}
		return lands[i].PropertyID < lands[j].PropertyID
	})

	w.Write([]string{"owner", "owner_name", "property_id", "title", "status", "area", "price", "on_blockchain"})
	for _, l := range lands {
		w.Write([]string{
			l.OwnerUsername,
			l.OwnerName,
			l.PropertyID,
			l.Title,
			string(l.Status),
			formatFloat(l.Area),
			formatNullPrice(l),
			strconv.FormatBool(l.IsRegisteredOnBlockchain),
		})
	}
	return nil
}

func (s *ReportService) blockchainTransactions(ctx context.Context, w *csv.Writer) error {
	var lands []models.Land
	if err := s.db.WithContext(ctx).Preload("Owner").
		Where("is_registered_on_blockchain = ?", true).
		Order("created_at ASC").Find(&lands).Error; err != nil {
		return apperrors.DatabaseError("failed to load lands", err)
	}
	var transfers []models.Transfer
	if err := s.db.WithContext(ctx).Preload("Land").Preload("FromUser").Preload("ToUser").
		Where("status = ?", models.TransferStatusCompleted).
		Order("completed_at ASC").Find(&transfers).Error; err != nil {
		return apperrors.DatabaseError("failed to load transfers", err)
	}

	w.Write([]string{"kind", "property_id", "token_id", "tx_hash", "from", "to", "date"})
	for _, l := range lands {
		w.Write([]string{"registration", l.PropertyID, derefString(l.TokenID), "", "", l.OwnerUsername, formatTime(&l.UpdatedAt)})
	}
	for _, t := range transfers {
		var token string
		if t.Land != nil {
			token = derefString(t.Land.TokenID)
		}
		w.Write([]string{"transfer", t.PropertyID, token, derefString(t.BlockchainTxHash), t.FromUsername, t.ToUsername, formatTime(t.CompletedAt)})
	}
	return nil
}

func (s *ReportService) transferHistory(ctx context.Context, w *csv.Writer) error {
	var transfers []models.Transfer
	if err := s.db.WithContext(ctx).Preload("Land").Preload("FromUser").Preload("ToUser").
		Order("initiated_at ASC").Find(&transfers).Error; err != nil {
		return apperrors.DatabaseError("failed to load transfers", err)
	}

	w.Write([]string{"transfer_id", "property_id", "from", "to", "transfer_type", "price", "status", "initiated_at", "completed_at", "tx_hash", "failure_reason"})
	for _, t := range transfers {
		w.Write([]string{
			t.ID.String(),
			t.PropertyID,
			t.FromUsername,
			t.ToUsername,
			string(t.TransferType),
			t.Price.StringFixed(2),
			string(t.Status),
			formatTime(&t.InitiatedAt),
			formatTime(t.CompletedAt),
			derefString(t.BlockchainTxHash),
			derefString(t.FailureReason),
		})
	}
	return nil
}

func (s *ReportService) ownershipHistory(ctx context.Context, w *csv.Writer) error {
	var transfers []models.Transfer
	if err := s.db.WithContext(ctx).Preload("Land").Preload("FromUser").Preload("ToUser").
		Where("status = ?", models.TransferStatusCompleted).
		Order("land_id ASC, completed_at ASC").Find(&transfers).Error; err != nil {
		return apperrors.DatabaseError("failed to load transfers", err)
	}

	w.Write([]string{"property_id", "title", "previous_owner", "new_owner", "transfer_type", "price", "completed_at", "tx_hash"})
	for _, t := range transfers {
		w.Write([]string{
			t.PropertyID,
			t.LandTitle,
			t.FromUsername,
			t.ToUsername,
			string(t.TransferType),
			t.Price.StringFixed(2),
			formatTime(t.CompletedAt),
			derefString(t.BlockchainTxHash),
		})
	}
	return nil
}

func (s *ReportService) landCounts(ctx context.Context) (map[string]int64, error) {
	return s.groupCount(ctx, &models.Land{}, "owner_id")
}

func (s *ReportService) groupCount(ctx context.Context, model interface{}, column string) (map[string]int64, error) {
	var rows []struct {
		GroupKey string
		Count    int64
	}
	if err := s.db.WithContext(ctx).Model(model).
		Select(column + " AS group_key, COUNT(*) AS count").
		Group(column).Scan(&rows).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to aggregate report data", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.GroupKey] = r.Count
	}
	return counts, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatNullPrice(l models.Land) string {
	if !l.Price.Valid {
		return ""
	}
	return l.Price.Decimal.StringFixed(2)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
