package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/polly/internal/accounts"
	"github.com/MarcoPoloResearchLab/polly/internal/polls"
	"github.com/MarcoPoloResearchLab/polly/internal/web"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	pollsPerPage       = 12
	maxPollListPage    = 10000
	maxOptionsPerPoll  = 20
	blankOptionsOnForm = 2
)

type pollForm struct {
	Title       string
	Description string
	Options     []string
}

func (h *httpHandler) handlePollList(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	if page > maxPollListPage {
		page = maxPollListPage
	}

	summaries, err := h.polls.ListPolls(c.Request.Context(), polls.ListOptions{
		Limit:  pollsPerPage + 1,
		Offset: (page - 1) * pollsPerPage,
	})
	if err != nil {
		h.logger.Error("poll list failed", zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, genericFailureMessage)
		return
	}

	hasNext := len(summaries) > pollsPerPage
	if hasNext {
		summaries = summaries[:pollsPerPage]
	}

	h.render(c, http.StatusOK, web.PagePollList, gin.H{
		"Polls":   h.pollCards(c, summaries),
		"Page":    page,
		"HasNext": hasNext,
	})
}

func (h *httpHandler) handlePollCreateForm(c *gin.Context) {
	h.renderPollForm(c, http.StatusOK, pollForm{Options: make([]string, blankOptionsOnForm)})
}

func (h *httpHandler) handlePollCreate(c *gin.Context) {
	form := pollForm{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Options:     c.PostFormArray("options"),
	}

	poll, err := h.polls.CreatePoll(c.Request.Context(), polls.CreatePollInput{
		Title:       form.Title,
		Description: form.Description,
		Options:     form.Options,
		UserID:      currentUserID(c),
	})
	if err != nil {
		message, known := createPollMessage(err)
		if !known {
			h.logger.Error("poll creation failed", zap.String("user_id", currentUserID(c)), zap.Error(err))
		}
		h.addFlash(c, flashKindError, message)
		for len(form.Options) < blankOptionsOnForm {
			form.Options = append(form.Options, "")
		}
		h.renderPollForm(c, http.StatusUnprocessableEntity, form)
		return
	}

	h.redirectWithFlash(c, "/polls/"+poll.ID, flashKindSuccess, "Poll created successfully!")
}

func (h *httpHandler) renderPollForm(c *gin.Context, status int, form pollForm) {
	h.render(c, status, web.PagePollNew, gin.H{
		"Form":       form,
		"MaxOptions": maxOptionsPerPoll,
	})
}

func (h *httpHandler) handlePollDetail(c *gin.Context) {
	ctx := c.Request.Context()
	detail, err := h.polls.GetPoll(ctx, c.Param("id"))
	if err != nil {
		h.handlePollError(c, err)
		return
	}

	userID := currentUserID(c)
	hasVoted, err := h.polls.HasVoted(ctx, detail.Poll.ID, userID, h.anonymousVoterIP(c, userID))
	if err != nil {
		h.logger.Warn("vote lookup failed", zap.String("poll_id", detail.Poll.ID), zap.Error(err))
	}

	isOwner := userID != "" && userID == detail.Poll.CreatedBy
	data := gin.H{
		"Poll":     detail,
		"Author":   h.authorNames(c, []string{detail.Poll.CreatedBy})[detail.Poll.CreatedBy],
		"HasVoted": hasVoted,
		"IsOwner":  isOwner,
	}
	if isOwner {
		links, err := h.polls.ActiveShareLinks(ctx, detail.Poll.ID)
		if err != nil {
			h.logger.Warn("share link lookup failed", zap.String("poll_id", detail.Poll.ID), zap.Error(err))
		}
		data["ShareLinks"] = links
	}
	h.render(c, http.StatusOK, web.PagePoll, data)
}

func (h *httpHandler) handleVote(c *gin.Context) {
	pollID := c.Param("id")
	userID := currentUserID(c)
	_, err := h.polls.CastVote(c.Request.Context(), polls.VoteInput{
		PollID:   pollID,
		OptionID: c.PostForm("option_id"),
		UserID:   userID,
		VoterIP:  h.anonymousVoterIP(c, userID),
	})
	target := "/polls/" + pollID
	if err != nil {
		if errors.Is(err, polls.ErrPollNotFound) {
			h.handlePollError(c, err)
			return
		}
		message, known := voteMessage(err)
		if !known {
			h.logger.Error("vote failed", zap.String("poll_id", pollID), zap.Error(err))
		}
		h.redirectWithFlash(c, target, flashKindError, message)
		return
	}
	h.redirectWithFlash(c, target, flashKindSuccess, "Thanks for voting!")
}

func (h *httpHandler) handlePollClose(c *gin.Context) {
	h.setPollActive(c, false, "Voting closed.")
}

func (h *httpHandler) handlePollReopen(c *gin.Context) {
	h.setPollActive(c, true, "Voting reopened.")
}

func (h *httpHandler) setPollActive(c *gin.Context, active bool, message string) {
	pollID := c.Param("id")
	if err := h.polls.SetActive(c.Request.Context(), pollID, currentUserID(c), active); err != nil {
		h.handlePollError(c, err)
		return
	}
	h.redirectWithFlash(c, "/polls/"+pollID, flashKindSuccess, message)
}

func (h *httpHandler) handlePollShare(c *gin.Context) {
	pollID := c.Param("id")
	if _, err := h.polls.CreateShareLink(c.Request.Context(), pollID, currentUserID(c)); err != nil {
		h.handlePollError(c, err)
		return
	}
	h.redirectWithFlash(c, "/polls/"+pollID, flashKindSuccess, "Share link created.")
}

func (h *httpHandler) handlePollError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, polls.ErrPollNotFound):
		h.renderError(c, http.StatusNotFound, "Poll not found.")
	case errors.Is(err, polls.ErrNotOwner):
		h.renderError(c, http.StatusForbidden, "Only the poll owner can do that.")
	default:
		h.logger.Error("poll request failed", zap.String("poll_id", c.Param("id")), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, genericFailureMessage)
	}
}

// anonymousVoterIP identifies voters without a session by client address.
func (h *httpHandler) anonymousVoterIP(c *gin.Context, userID string) string {
	if userID != "" {
		return ""
	}
	return c.ClientIP()
}

func (h *httpHandler) pollCards(c *gin.Context, summaries []polls.PollSummary) []web.PollCard {
	ownerIDs := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		ownerIDs = append(ownerIDs, summary.Poll.CreatedBy)
	}
	names := h.authorNames(c, ownerIDs)
	cards := make([]web.PollCard, 0, len(summaries))
	for _, summary := range summaries {
		cards = append(cards, web.PollCard{Summary: summary, Author: names[summary.Poll.CreatedBy]})
	}
	return cards
}

func (h *httpHandler) authorNames(c *gin.Context, userIDs []string) map[string]string {
	names := make(map[string]string, len(userIDs))
	profiles, err := h.accounts.ProfilesByID(c.Request.Context(), userIDs)
	if err != nil {
		h.logger.Warn("author lookup failed", zap.Error(err))
		return names
	}
	for id, profile := range profiles {
		names[id] = authorName(profile)
	}
	return names
}

func authorName(profile accounts.Profile) string {
	if name := profile.DisplayName(); name != "" {
		return name
	}
	return "Anonymous"
}

func createPollMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, polls.ErrTitleRequired):
		return "Please enter a poll title.", true
	case errors.Is(err, polls.ErrTitleTooLong):
		return "Poll title is too long.", true
	case errors.Is(err, polls.ErrDescriptionTooLong):
		return "Description is too long.", true
	case errors.Is(err, polls.ErrNotEnoughOptions):
		return "Please provide at least 2 options.", true
	case errors.Is(err, polls.ErrTooManyOptions):
		return "A poll can have at most 20 options.", true
	case errors.Is(err, polls.ErrOptionTooLong):
		return "One of the options is too long.", true
	case errors.Is(err, polls.ErrOwnerRequired):
		return "You must be signed in to create a poll.", true
	}
	return "Failed to create poll. Please try again.", false
}

func voteMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, polls.ErrAlreadyVoted):
		return "You have already voted on this poll.", true
	case errors.Is(err, polls.ErrPollClosed):
		return "This poll is closed.", true
	case errors.Is(err, polls.ErrOptionMismatch):
		return "Please choose one of the poll's options.", true
	case errors.Is(err, polls.ErrVoterRequired):
		return "We could not identify you as a voter.", true
	}
	return "Failed to record your vote. Please try again.", false
}
