package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/polly/internal/polls"
	"github.com/stretchr/testify/require"
)

func TestCreatePollRedirectsToPollPage(t *testing.T) {
	server := newTestServer(t, nil)
	account := server.signUp(t, "ada@example.com", "Ada Lovelace")
	session := server.sessionCookie(t, account)

	recorder := server.post("/polls/create", url.Values{
		"title":       {"Favorite language?"},
		"description": {"Pick **one**"},
		"options":     {"Go", "  ", "Rust", ""},
	}, session)
	require.Equal(t, http.StatusFound, recorder.Code)
	location := recorder.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/polls/"), location)

	page := server.get(location, session, responseCookie(recorder, flashCookieName))
	require.Equal(t, http.StatusOK, page.Code)
	body := page.Body.String()
	require.Contains(t, body, "Favorite language?")
	require.Contains(t, body, "<strong>one</strong>")
	require.Contains(t, body, "Poll created successfully!")
	require.Contains(t, body, "by Ada Lovelace")
	require.Contains(t, body, "/close")

	summaries, err := server.polls.ListPollsByOwner(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 2, summaries[0].OptionCount)
}

func TestCreatePollWithOneOptionIsRejectedBeforeWriting(t *testing.T) {
	server := newTestServer(t, nil)
	account := server.signUp(t, "ada@example.com", "")
	session := server.sessionCookie(t, account)

	recorder := server.post("/polls/create", url.Values{
		"title":   {"Lonely"},
		"options": {"only", " "},
	}, session)
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	require.Contains(t, recorder.Body.String(), "Please provide at least 2 options.")
	require.Contains(t, recorder.Body.String(), `value="Lonely"`)

	var count int64
	require.NoError(t, server.db.Model(&polls.Poll{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAnonymousVoteIsCountedOnce(t *testing.T) {
	server := newTestServer(t, nil)
	owner := server.signUp(t, "owner@example.com", "")
	poll, err := server.polls.CreatePoll(context.Background(), polls.CreatePollInput{
		Title:   "Tabs or spaces?",
		Options: []string{"Tabs", "Spaces"},
		UserID:  owner.ID,
	})
	require.NoError(t, err)

	form := url.Values{"option_id": {poll.Options[1].ID}}
	first := server.post("/polls/"+poll.ID+"/vote", form)
	require.Equal(t, http.StatusFound, first.Code)
	require.Equal(t, "/polls/"+poll.ID, first.Header().Get("Location"))

	second := server.post("/polls/"+poll.ID+"/vote", form)
	require.Equal(t, http.StatusFound, second.Code)
	page := server.get("/polls/"+poll.ID, responseCookie(second, flashCookieName))
	require.Contains(t, page.Body.String(), "You have already voted on this poll.")
	require.NotContains(t, page.Body.String(), `action="/polls/`+poll.ID+`/vote"`)

	detail, err := server.polls.GetPoll(context.Background(), poll.ID)
	require.NoError(t, err)
	require.Equal(t, 1, detail.TotalVotes)
	require.Equal(t, 100, detail.Options[1].Percentage)
}

func TestVoteOnUnknownPollRendersNotFound(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.post("/polls/missing/vote", url.Values{"option_id": {"x"}})
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = server.get("/polls/missing")
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Contains(t, recorder.Body.String(), "Poll not found.")
}

func TestOwnerActionsRequireOwnership(t *testing.T) {
	server := newTestServer(t, nil)
	owner := server.signUp(t, "owner@example.com", "")
	intruder := server.signUp(t, "intruder@example.com", "")
	poll, err := server.polls.CreatePoll(context.Background(), polls.CreatePollInput{
		Title:   "Mine",
		Options: []string{"a", "b"},
		UserID:  owner.ID,
	})
	require.NoError(t, err)

	recorder := server.post("/polls/"+poll.ID+"/close", url.Values{}, server.sessionCookie(t, intruder))
	require.Equal(t, http.StatusForbidden, recorder.Code)

	ownerSession := server.sessionCookie(t, owner)
	recorder = server.post("/polls/"+poll.ID+"/close", url.Values{}, ownerSession)
	require.Equal(t, http.StatusFound, recorder.Code)
	detail, err := server.polls.GetPoll(context.Background(), poll.ID)
	require.NoError(t, err)
	require.False(t, detail.Poll.IsActive)

	recorder = server.post("/polls/"+poll.ID+"/share", url.Values{}, ownerSession)
	require.Equal(t, http.StatusFound, recorder.Code)
	page := server.get("/polls/"+poll.ID, ownerSession)
	require.Contains(t, page.Body.String(), "https://polly.example.com/polls/"+poll.ID)
	require.Contains(t, page.Body.String(), "/reopen")
}

func TestPollListPaginates(t *testing.T) {
	server := newTestServer(t, nil)
	owner := server.signUp(t, "owner@example.com", "Owner")
	for index := 0; index < pollsPerPage+1; index++ {
		_, err := server.polls.CreatePoll(context.Background(), polls.CreatePollInput{
			Title:   "Poll",
			Options: []string{"a", "b"},
			UserID:  owner.ID,
		})
		require.NoError(t, err)
	}

	first := server.get("/polls")
	require.Equal(t, http.StatusOK, first.Code)
	require.Contains(t, first.Body.String(), `href="/polls?page=2"`)
	require.Equal(t, pollsPerPage, strings.Count(first.Body.String(), "Created by Owner"))

	second := server.get("/polls?page=2")
	require.Equal(t, 1, strings.Count(second.Body.String(), "Created by Owner"))
	require.NotContains(t, second.Body.String(), `href="/polls?page=3"`)

	overflow := server.get("/polls?page=9223372036854775807")
	require.Equal(t, http.StatusOK, overflow.Code)
	require.Zero(t, strings.Count(overflow.Body.String(), "Created by Owner"))
	require.Contains(t, overflow.Body.String(), fmt.Sprintf(`href="/polls?page=%d"`, maxPollListPage-1))
}

func TestPollResultsAPI(t *testing.T) {
	server := newTestServer(t, nil)
	owner := server.signUp(t, "owner@example.com", "")
	poll, err := server.polls.CreatePoll(context.Background(), polls.CreatePollInput{
		Title:   "API",
		Options: []string{"yes", "no"},
		UserID:  owner.ID,
	})
	require.NoError(t, err)
	_, err = server.polls.CastVote(context.Background(), polls.VoteInput{PollID: poll.ID, OptionID: poll.Options[0].ID, UserID: owner.ID})
	require.NoError(t, err)

	request := server.get("/api/polls/" + poll.ID + "/results")
	require.Equal(t, http.StatusOK, request.Code)

	var payload resultsResponsePayload
	require.NoError(t, json.Unmarshal(request.Body.Bytes(), &payload))
	require.Equal(t, poll.ID, payload.PollID)
	require.Equal(t, 1, payload.TotalVotes)
	require.Len(t, payload.Options, 2)
	require.Equal(t, 100, payload.Options[0].Percentage)
	require.Zero(t, payload.Options[1].Votes)

	missing := server.get("/api/polls/missing/results")
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.JSONEq(t, `{"error":"poll_not_found"}`, missing.Body.String())
}

func TestProfileUpdatePublishesEvent(t *testing.T) {
	server := newTestServer(t, nil)
	account := server.signUp(t, "ada@example.com", "")
	session := server.sessionCookie(t, account)

	recorder := server.post("/dashboard/profile", url.Values{
		"full_name":  {"Ada Lovelace"},
		"avatar_url": {"ftp://example.com/ada.png"},
	}, session)
	require.Equal(t, http.StatusFound, recorder.Code)
	page := server.get("/dashboard", session, responseCookie(recorder, flashCookieName))
	require.Contains(t, page.Body.String(), "Avatar URL must be an http or https address.")

	recorder = server.post("/dashboard/profile", url.Values{
		"full_name":  {"Ada Lovelace"},
		"avatar_url": {"https://example.com/ada.png"},
	}, session)
	require.Equal(t, http.StatusFound, recorder.Code)
	refreshed := responseCookie(recorder, testCookieName)
	require.NotNil(t, refreshed)

	page = server.get("/dashboard", refreshed)
	require.Contains(t, page.Body.String(), `value="Ada Lovelace"`)
	require.Contains(t, page.Body.String(), `src="https://example.com/ada.png"`)
}
