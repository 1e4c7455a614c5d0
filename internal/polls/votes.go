package polls

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CastVote records a single vote. A voter may vote once per poll; signed-in
// voters are identified by user id and anonymous voters by address.
func (s *Service) CastVote(ctx context.Context, input VoteInput) (Vote, error) {
	pollID := strings.TrimSpace(input.PollID)
	optionID := strings.TrimSpace(input.OptionID)
	userID := strings.TrimSpace(input.UserID)
	voterIP := strings.TrimSpace(input.VoterIP)
	if userID == "" && voterIP == "" {
		return Vote{}, ErrVoterRequired
	}

	voteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCastVote, "id_generation_failed", err)
		return Vote{}, newServiceError(opCastVote, "id_generation_failed", err)
	}

	vote := Vote{
		ID:        voteID,
		PollID:    pollID,
		OptionID:  optionID,
		CreatedAt: s.clock().UTC(),
	}
	if userID != "" {
		vote.UserID = &userID
	} else {
		vote.VoterIP = &voterIP
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var poll Poll
		err := tx.Where("id = ?", pollID).Take(&poll).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPollNotFound
		}
		if err != nil {
			s.logError(opCastVote, "poll_select_failed", err, zap.String("poll_id", pollID))
			return newServiceError(opCastVote, "poll_select_failed", err)
		}
		if !poll.IsActive {
			return ErrPollClosed
		}

		var optionCount int64
		err = tx.Model(&PollOption{}).
			Where("id = ? AND poll_id = ?", optionID, pollID).
			Count(&optionCount).Error
		if err != nil {
			s.logError(opCastVote, "option_select_failed", err, zap.String("poll_id", pollID))
			return newServiceError(opCastVote, "option_select_failed", err)
		}
		if optionCount == 0 {
			return ErrOptionMismatch
		}

		voted, err := hasVoted(tx, pollID, userID, voterIP)
		if err != nil {
			s.logError(opCastVote, "vote_select_failed", err, zap.String("poll_id", pollID))
			return newServiceError(opCastVote, "vote_select_failed", err)
		}
		if voted {
			return ErrAlreadyVoted
		}

		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyVoted
			}
			s.logError(opCastVote, "vote_insert_failed", err, zap.String("poll_id", pollID))
			return newServiceError(opCastVote, "vote_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Vote{}, txErr
	}

	s.logger.Info("vote recorded",
		zap.String("poll_id", pollID),
		zap.String("option_id", optionID),
		zap.Bool("anonymous", userID == ""))
	return vote, nil
}

// HasVoted reports whether the voter already has a vote on the poll.
func (s *Service) HasVoted(ctx context.Context, pollID string, userID string, voterIP string) (bool, error) {
	userID = strings.TrimSpace(userID)
	voterIP = strings.TrimSpace(voterIP)
	if userID == "" && voterIP == "" {
		return false, nil
	}
	voted, err := hasVoted(s.db.WithContext(ctx), strings.TrimSpace(pollID), userID, voterIP)
	if err != nil {
		s.logError(opHasVoted, "vote_select_failed", err, zap.String("poll_id", pollID))
		return false, newServiceError(opHasVoted, "vote_select_failed", err)
	}
	return voted, nil
}

func hasVoted(db *gorm.DB, pollID string, userID string, voterIP string) (bool, error) {
	query := db.Model(&Vote{}).Where("poll_id = ?", pollID)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	} else {
		query = query.Where("user_id IS NULL AND voter_ip = ?", voterIP)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
