package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/polly/internal/polls"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type resultsResponsePayload struct {
	PollID     string                `json:"poll_id"`
	Title      string                `json:"title"`
	IsActive   bool                  `json:"is_active"`
	TotalVotes int                   `json:"total_votes"`
	Options    []optionResultPayload `json:"options"`
}

type optionResultPayload struct {
	OptionID   string `json:"option_id"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

func (h *httpHandler) handlePollResults(c *gin.Context) {
	detail, err := h.polls.GetPoll(c.Request.Context(), c.Param("id"))
	if errors.Is(err, polls.ErrPollNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "poll_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("poll results failed", zap.String("poll_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "results_failed"})
		return
	}

	response := resultsResponsePayload{
		PollID:     detail.Poll.ID,
		Title:      detail.Poll.Title,
		IsActive:   detail.Poll.IsActive,
		TotalVotes: detail.TotalVotes,
		Options:    make([]optionResultPayload, 0, len(detail.Options)),
	}
	for _, tally := range detail.Options {
		response.Options = append(response.Options, optionResultPayload{
			OptionID:   tally.Option.ID,
			Text:       tally.Option.Text,
			Votes:      tally.Votes,
			Percentage: tally.Percentage,
		})
	}
	c.JSON(http.StatusOK, response)
}
