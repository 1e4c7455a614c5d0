package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/polly/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes  = 72
	maxFullNameLength = 200
)

var (
	ErrInvalidEmail       = errors.New("accounts: invalid email")
	ErrWeakPassword       = errors.New("accounts: password must be at least 6 characters")
	ErrPasswordTooLong    = errors.New("accounts: password must be at most 72 bytes")
	ErrPasswordMismatch   = errors.New("accounts: passwords do not match")
	ErrEmailTaken         = errors.New("accounts: email already registered")
	ErrInvalidCredentials = errors.New("accounts: invalid email or password")
	ErrProfileNotFound    = errors.New("accounts: profile not found")
	ErrFullNameTooLong    = errors.New("accounts: full name too long")
	ErrInvalidAvatarURL   = errors.New("accounts: avatar url must be an absolute http(s) url")
)

// IDProvider issues identifiers for new accounts.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service registers accounts, verifies credentials and manages profiles.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("accounts: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("accounts: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SignUpInput carries the registration form.
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

// SignUp creates an account and its profile in one transaction.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Account, error) {
	email := normalizeEmail(input.Email)
	if !validEmail(email) {
		return Account{}, ErrInvalidEmail
	}
	if utf8.RuneCountInString(input.Password) < minPasswordLength {
		return Account{}, ErrWeakPassword
	}
	if len(input.Password) > maxPasswordBytes {
		return Account{}, ErrPasswordTooLong
	}
	if input.Password != input.ConfirmPassword {
		return Account{}, ErrPasswordMismatch
	}
	if utf8.RuneCountInString(normalize(input.FullName)) > maxFullNameLength {
		return Account{}, ErrFullNameTooLong
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	accountID, err := s.idProvider.NewID()
	if err != nil {
		return Account{}, fmt.Errorf("accounts: generate id: %w", err)
	}

	now := s.now().UTC()
	account := Account{
		ID:           accountID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := Profile{
		ID:        accountID,
		CreatedAt: now,
		UpdatedAt: now,
		FullName:  optionalString(input.FullName),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Account{}).Where("email = ?", email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrEmailTaken
		}
		if err := tx.Create(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}
		return tx.Create(&profile).Error
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return Account{}, err
		}
		s.logger.Error("account sign-up failed", zap.Error(err))
		return Account{}, fmt.Errorf("accounts: sign up: %w", err)
	}

	s.logger.Info("account created", zap.String("user_id", account.ID))
	return account, nil
}

// SignIn verifies credentials. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) SignIn(ctx context.Context, email string, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, fmt.Errorf("accounts: load account: %w", err)
	}

	if err := auth.CheckPassword(account.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("password comparison failed", zap.String("user_id", account.ID), zap.Error(err))
		}
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Profile returns the profile for userID.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("id = ?", normalize(userID)).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("accounts: load profile: %w", err)
	}
	return profile, nil
}

// ProfilesByID loads the profiles for the given ids, keyed by id. Missing ids are omitted.
func (s *Service) ProfilesByID(ctx context.Context, ids []string) (map[string]Profile, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		trimmed := normalize(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}

	result := make(map[string]Profile, len(unique))
	if len(unique) == 0 {
		return result, nil
	}

	var profiles []Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", unique).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("accounts: load profiles: %w", err)
	}
	for _, profile := range profiles {
		result[profile.ID] = profile
	}
	return result, nil
}

// ProfileUpdate carries editable profile fields. Empty values clear the field.
type ProfileUpdate struct {
	FullName  string
	AvatarURL string
}

// UpdateProfile replaces the editable profile fields of userID.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (Profile, error) {
	if utf8.RuneCountInString(normalize(update.FullName)) > maxFullNameLength {
		return Profile{}, ErrFullNameTooLong
	}
	avatar := normalize(update.AvatarURL)
	if avatar != "" && !validAvatarURL(avatar) {
		return Profile{}, ErrInvalidAvatarURL
	}

	result := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("id = ?", normalize(userID)).
		Updates(map[string]interface{}{
			"full_name":  optionalString(update.FullName),
			"avatar_url": optionalString(avatar),
			"updated_at": s.now().UTC(),
		})
	if result.Error != nil {
		return Profile{}, fmt.Errorf("accounts: update profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return Profile{}, ErrProfileNotFound
	}
	return s.Profile(ctx, userID)
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return parsed.Address == email
}

func validAvatarURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
