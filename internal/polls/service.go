package polls

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the poll service.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   IDProvider
	Logger       *zap.Logger
	ShareBaseURL string
	ShareTTL     time.Duration
}

// Service owns polls, their options, votes and share links.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	idProvider   IDProvider
	logger       *zap.Logger
	shareBaseURL string
	shareTTL     time.Duration
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:           cfg.Database,
		clock:        clock,
		idProvider:   cfg.IDProvider,
		logger:       logger,
		shareBaseURL: strings.TrimRight(strings.TrimSpace(cfg.ShareBaseURL), "/"),
		shareTTL:     cfg.ShareTTL,
	}, nil
}

// CreatePoll validates the input and writes the poll and its options atomically.
func (s *Service) CreatePoll(ctx context.Context, input CreatePollInput) (Poll, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Poll{}, ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return Poll{}, ErrTitleTooLong
	}
	description := strings.TrimSpace(input.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return Poll{}, ErrDescriptionTooLong
	}
	optionTexts, err := normalizeOptions(input.Options)
	if err != nil {
		return Poll{}, err
	}
	ownerID := strings.TrimSpace(input.UserID)
	if ownerID == "" {
		return Poll{}, ErrOwnerRequired
	}

	pollID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePoll, "id_generation_failed", err)
		return Poll{}, newServiceError(opCreatePoll, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	poll := Poll{
		ID:        pollID,
		CreatedAt: now,
		UpdatedAt: now,
		Title:     title,
		CreatedBy: ownerID,
		IsActive:  true,
	}
	if description != "" {
		poll.Description = &description
	}

	options := make([]PollOption, 0, len(optionTexts))
	for position, text := range optionTexts {
		optionID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreatePoll, "id_generation_failed", err)
			return Poll{}, newServiceError(opCreatePoll, "id_generation_failed", err)
		}
		options = append(options, PollOption{
			ID:        optionID,
			PollID:    pollID,
			Text:      text,
			Position:  position,
			CreatedAt: now,
		})
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&poll).Error; err != nil {
			s.logError(opCreatePoll, "poll_insert_failed", err, zap.String("poll_id", pollID))
			return newServiceError(opCreatePoll, "poll_insert_failed", err)
		}
		if err := tx.Create(&options).Error; err != nil {
			s.logError(opCreatePoll, "options_insert_failed", err, zap.String("poll_id", pollID))
			return newServiceError(opCreatePoll, "options_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Poll{}, txErr
	}

	poll.Options = options
	s.logger.Info("poll created",
		zap.String("poll_id", pollID),
		zap.String("user_id", ownerID),
		zap.Int("options", len(options)))
	return poll, nil
}

// ListPolls returns polls newest first with option and vote counts.
func (s *Service) ListPolls(ctx context.Context, opts ListOptions) ([]PollSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var polls []Poll
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&polls).Error
	if err != nil {
		s.logError(opListPolls, "poll_select_failed", err)
		return nil, newServiceError(opListPolls, "poll_select_failed", err)
	}
	return s.summarize(ctx, polls)
}

// ListPollsByOwner returns every poll created by userID, newest first.
func (s *Service) ListPollsByOwner(ctx context.Context, userID string) ([]PollSummary, error) {
	var polls []Poll
	err := s.db.WithContext(ctx).
		Where("created_by = ?", strings.TrimSpace(userID)).
		Order("created_at DESC").
		Order("id DESC").
		Find(&polls).Error
	if err != nil {
		s.logError(opListPolls, "owner_select_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListPolls, "owner_select_failed", err)
	}
	return s.summarize(ctx, polls)
}

// GetPoll loads a poll with its ordered options and tallies.
func (s *Service) GetPoll(ctx context.Context, pollID string) (PollDetail, error) {
	var poll Poll
	err := s.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", strings.TrimSpace(pollID)).
		Take(&poll).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PollDetail{}, ErrPollNotFound
	}
	if err != nil {
		s.logError(opGetPoll, "poll_select_failed", err, zap.String("poll_id", pollID))
		return PollDetail{}, newServiceError(opGetPoll, "poll_select_failed", err)
	}

	counts, err := s.voteCountsByOption(ctx, poll.ID)
	if err != nil {
		s.logError(opGetPoll, "tally_failed", err, zap.String("poll_id", poll.ID))
		return PollDetail{}, newServiceError(opGetPoll, "tally_failed", err)
	}

	tallies, total := tallyOptions(poll.Options, counts)
	return PollDetail{Poll: poll, Options: tallies, TotalVotes: total}, nil
}

// SetActive opens or closes a poll for voting. Only the owner may do this.
func (s *Service) SetActive(ctx context.Context, pollID string, userID string, active bool) error {
	poll, err := s.ownedPoll(ctx, pollID, userID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Model(&Poll{}).
		Where("id = ?", poll.ID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": s.clock().UTC(),
		}).Error
	if err != nil {
		s.logError(opSetActive, "poll_update_failed", err, zap.String("poll_id", poll.ID))
		return newServiceError(opSetActive, "poll_update_failed", err)
	}
	s.logger.Info("poll activity changed", zap.String("poll_id", poll.ID), zap.Bool("active", active))
	return nil
}

func (s *Service) ownedPoll(ctx context.Context, pollID string, userID string) (Poll, error) {
	var poll Poll
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(pollID)).Take(&poll).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Poll{}, ErrPollNotFound
	}
	if err != nil {
		return Poll{}, newServiceError(opGetPoll, "poll_select_failed", err)
	}
	if poll.CreatedBy != strings.TrimSpace(userID) {
		return Poll{}, ErrNotOwner
	}
	return poll, nil
}

type pollCount struct {
	PollID string
	Count  int
}

type optionCount struct {
	OptionID string
	Count    int
}

func (s *Service) summarize(ctx context.Context, polls []Poll) ([]PollSummary, error) {
	summaries := make([]PollSummary, 0, len(polls))
	if len(polls) == 0 {
		return summaries, nil
	}
	ids := make([]string, 0, len(polls))
	for _, poll := range polls {
		ids = append(ids, poll.ID)
	}

	var optionCounts []pollCount
	err := s.db.WithContext(ctx).
		Model(&PollOption{}).
		Select("poll_id, COUNT(*) AS count").
		Where("poll_id IN ?", ids).
		Group("poll_id").
		Scan(&optionCounts).Error
	if err != nil {
		s.logError(opListPolls, "option_count_failed", err)
		return nil, newServiceError(opListPolls, "option_count_failed", err)
	}

	var voteCounts []pollCount
	err = s.db.WithContext(ctx).
		Model(&Vote{}).
		Select("poll_id, COUNT(*) AS count").
		Where("poll_id IN ?", ids).
		Group("poll_id").
		Scan(&voteCounts).Error
	if err != nil {
		s.logError(opListPolls, "vote_count_failed", err)
		return nil, newServiceError(opListPolls, "vote_count_failed", err)
	}

	optionsByPoll := make(map[string]int, len(optionCounts))
	for _, row := range optionCounts {
		optionsByPoll[row.PollID] = row.Count
	}
	votesByPoll := make(map[string]int, len(voteCounts))
	for _, row := range voteCounts {
		votesByPoll[row.PollID] = row.Count
	}

	for _, poll := range polls {
		summaries = append(summaries, PollSummary{
			Poll:        poll,
			OptionCount: optionsByPoll[poll.ID],
			TotalVotes:  votesByPoll[poll.ID],
		})
	}
	return summaries, nil
}

func (s *Service) voteCountsByOption(ctx context.Context, pollID string) (map[string]int, error) {
	var rows []optionCount
	err := s.db.WithContext(ctx).
		Model(&Vote{}).
		Select("option_id, COUNT(*) AS count").
		Where("poll_id = ?", pollID).
		Group("option_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.OptionID] = row.Count
	}
	return counts, nil
}

func normalizeOptions(raw []string) ([]string, error) {
	options := make([]string, 0, len(raw))
	for _, value := range raw {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if utf8.RuneCountInString(trimmed) > maxOptionLength {
			return nil, ErrOptionTooLong
		}
		options = append(options, trimmed)
	}
	if len(options) < minOptions {
		return nil, ErrNotEnoughOptions
	}
	if len(options) > maxOptions {
		return nil, ErrTooManyOptions
	}
	return options, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("poll service error", allFields...)
}
