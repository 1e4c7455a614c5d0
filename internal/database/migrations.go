package database

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/accounts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillMissingProfiles = "2026-10-01_backfill_missing_profiles"
	migrationNormalizeAccountEmails  = "2026-10-08_normalize_account_emails"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, *zap.Logger) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations := []migrationDefinition{
		{name: migrationBackfillMissingProfiles, apply: backfillMissingProfiles},
		{name: migrationNormalizeAccountEmails, apply: normalizeAccountEmails},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx, logger); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// Accounts created before sign-up wrote both rows in one transaction may lack a profile.
func backfillMissingProfiles(db *gorm.DB, _ *zap.Logger) error {
	var orphans []accounts.Account
	err := db.Model(&accounts.Account{}).
		Joins("LEFT JOIN profiles ON profiles.id = accounts.id").
		Where("profiles.id IS NULL").
		Find(&orphans).Error
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}
	now := time.Now().UTC()
	profiles := make([]accounts.Profile, 0, len(orphans))
	for _, account := range orphans {
		profiles = append(profiles, accounts.Profile{
			ID:        account.ID,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return db.Create(&profiles).Error
}

// Accounts whose normalized email is already taken keep their stored value.
func normalizeAccountEmails(db *gorm.DB, logger *zap.Logger) error {
	var candidates []accounts.Account
	err := db.Model(&accounts.Account{}).
		Where("email <> LOWER(TRIM(email))").
		Order("created_at ASC").
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return err
	}
	for _, account := range candidates {
		normalized := strings.ToLower(strings.TrimSpace(account.Email))
		var taken int64
		err := db.Model(&accounts.Account{}).
			Where("email = ? AND id <> ?", normalized, account.ID).
			Count(&taken).Error
		if err != nil {
			return err
		}
		if taken > 0 {
			logger.Warn("account email normalization skipped",
				zap.String("account_id", account.ID),
				zap.String("email", normalized),
			)
			continue
		}
		err = db.Model(&accounts.Account{}).
			Where("id = ?", account.ID).
			Update("email", normalized).Error
		if err != nil {
			return err
		}
	}
	return nil
}
