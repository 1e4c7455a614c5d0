package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/polly/internal/accounts"
	"github.com/MarcoPoloResearchLab/polly/internal/web"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUserID(c)

	profile, err := h.accounts.Profile(ctx, userID)
	if err != nil && !errors.Is(err, accounts.ErrProfileNotFound) {
		h.logger.Error("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, genericFailureMessage)
		return
	}

	summaries, err := h.polls.ListPollsByOwner(ctx, userID)
	if err != nil {
		h.logger.Error("owner poll list failed", zap.String("user_id", userID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, genericFailureMessage)
		return
	}

	cards := make([]web.PollCard, 0, len(summaries))
	for _, summary := range summaries {
		cards = append(cards, web.PollCard{Summary: summary, Author: authorName(profile)})
	}

	h.render(c, http.StatusOK, web.PageDashboard, gin.H{
		"Profile": profile,
		"Polls":   cards,
	})
}

func (h *httpHandler) handleProfileUpdate(c *gin.Context) {
	userID := currentUserID(c)
	profile, err := h.accounts.UpdateProfile(c.Request.Context(), userID, accounts.ProfileUpdate{
		FullName:  c.PostForm("full_name"),
		AvatarURL: c.PostForm("avatar_url"),
	})
	if err != nil {
		message := genericFailureMessage
		switch {
		case errors.Is(err, accounts.ErrFullNameTooLong):
			message = "Full name is too long."
		case errors.Is(err, accounts.ErrInvalidAvatarURL):
			message = "Avatar URL must be an http or https address."
		default:
			h.logger.Error("profile update failed", zap.String("user_id", userID), zap.Error(err))
		}
		h.redirectWithFlash(c, "/dashboard", flashKindError, message)
		return
	}

	if claims, ok := currentClaims(c); ok {
		identity := claims.Identity()
		identity.DisplayName = profile.DisplayName()
		err := h.startSession(c, identity)
		if err != nil {
			h.logger.Warn("session refresh failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	h.events.Notify(userID, AuthEventProfileUpdated)
	h.redirectWithFlash(c, "/dashboard", flashKindSuccess, "Profile updated.")
}
