package polls

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateShareLink stores a share link for the poll. Only the owner may share a poll.
func (s *Service) CreateShareLink(ctx context.Context, pollID string, userID string) (QRCode, error) {
	poll, err := s.ownedPoll(ctx, pollID, userID)
	if err != nil {
		return QRCode{}, err
	}

	codeID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateShareLink, "id_generation_failed", err)
		return QRCode{}, newServiceError(opCreateShareLink, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	code := QRCode{
		ID:        codeID,
		PollID:    poll.ID,
		URL:       s.PollURL(poll.ID),
		CreatedAt: now,
	}
	if s.shareTTL > 0 {
		expiresAt := now.Add(s.shareTTL)
		code.ExpiresAt = &expiresAt
	}

	if err := s.db.WithContext(ctx).Create(&code).Error; err != nil {
		s.logError(opCreateShareLink, "insert_failed", err, zap.String("poll_id", poll.ID))
		return QRCode{}, newServiceError(opCreateShareLink, "insert_failed", err)
	}
	s.logger.Info("share link created", zap.String("poll_id", poll.ID), zap.String("share_id", code.ID))
	return code, nil
}

// ActiveShareLinks lists unexpired share links for a poll, newest first.
func (s *Service) ActiveShareLinks(ctx context.Context, pollID string) ([]QRCode, error) {
	var codes []QRCode
	now := s.clock().UTC()
	err := s.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at DESC").
		Find(&codes).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opActiveShareLinks, "select_failed", err, zap.String("poll_id", pollID))
		return nil, newServiceError(opActiveShareLinks, "select_failed", err)
	}
	return codes, nil
}

// PollURL is the absolute address of the poll page.
func (s *Service) PollURL(pollID string) string {
	return s.shareBaseURL + "/polls/" + pollID
}
