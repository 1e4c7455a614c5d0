package server

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/accounts"
	"github.com/MarcoPoloResearchLab/polly/internal/auth"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegisterRejectsMismatchedPasswords(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.post("/auth/register", url.Values{
		"email":            {"grace@example.com"},
		"password":         {"compiler"},
		"confirm_password": {"compilers"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	require.Contains(t, recorder.Body.String(), "Passwords do not match.")

	var count int64
	require.NoError(t, server.db.Model(&accounts.Account{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRegisterRedirectsToLoginWithFlash(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.post("/auth/register", url.Values{
		"email":            {"grace@example.com"},
		"password":         {"compiler"},
		"confirm_password": {"compiler"},
		"full_name":        {"Grace Hopper"},
	})
	require.Equal(t, http.StatusFound, recorder.Code)
	require.Equal(t, "/auth/login", recorder.Header().Get("Location"))

	flash := responseCookie(recorder, flashCookieName)
	require.NotNil(t, flash)
	page := server.get("/auth/login", flash)
	require.Equal(t, http.StatusOK, page.Code)
	require.Contains(t, page.Body.String(), "Registration successful! Please sign in.")
}

func TestLoginIssuesSessionAndHonoursRedirect(t *testing.T) {
	server := newTestServer(t, nil)
	account := server.signUp(t, "ada@example.com", "Ada Lovelace")

	testCases := []struct {
		redirect string
		location string
	}{
		{redirect: "", location: "/"},
		{redirect: "/polls/create", location: "/polls/create"},
		{redirect: "//evil.example.com", location: "/"},
		{redirect: "/\t/evil.example.com", location: "/"},
		{redirect: "/\r\n/evil.example.com", location: "/"},
	}
	for _, testCase := range testCases {
		recorder := server.post("/auth/login", url.Values{
			"email":    {"ADA@example.com"},
			"password": {"secret-password"},
			"redirect": {testCase.redirect},
		})
		require.Equal(t, http.StatusFound, recorder.Code)
		require.Equal(t, testCase.location, recorder.Header().Get("Location"))

		session := responseCookie(recorder, testCookieName)
		require.NotNil(t, session)
		require.True(t, session.HttpOnly)

		validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
			SigningSecret: []byte(testSigningSecret),
			CookieName:    testCookieName,
			Clock:         func() time.Time { return testNow },
		})
		require.NoError(t, err)
		claims, err := validator.ValidateToken(session.Value)
		require.NoError(t, err)
		require.Equal(t, account.ID, claims.UserID)
		require.Equal(t, "Ada Lovelace", claims.UserDisplayName)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	server := newTestServer(t, nil)
	server.signUp(t, "ada@example.com", "")

	recorder := server.post("/auth/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong-password"},
	})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Contains(t, recorder.Body.String(), "Invalid email or password.")
	require.Nil(t, responseCookie(recorder, testCookieName))
}

func TestLogoutClearsSessionAndPublishesEvent(t *testing.T) {
	server := newTestServer(t, nil)
	account := server.signUp(t, "ada@example.com", "")
	session := server.sessionCookie(t, account)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := server.events.Subscribe(ctx, account.ID)
	defer cleanup()

	recorder := server.post("/session/logout", url.Values{}, session)
	require.Equal(t, http.StatusFound, recorder.Code)
	require.Equal(t, "/auth/login", recorder.Header().Get("Location"))

	cleared := responseCookie(recorder, testCookieName)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Less(t, cleared.MaxAge, 0)

	select {
	case event := <-stream:
		require.Equal(t, AuthEventSignedOut, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected signed_out event")
	}
}

func TestSessionIsRefreshedAfterHalfItsLifetime(t *testing.T) {
	server := newTestServer(t, nil)
	account := server.signUp(t, "ada@example.com", "")

	agedIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      testTokenTTL,
		Clock:         func() time.Time { return testNow.Add(-5 * 24 * time.Hour) },
	})
	token, _, err := agedIssuer.IssueSessionToken(context.Background(), auth.SessionIdentity{UserID: account.ID, Email: account.Email})
	require.NoError(t, err)

	recorder := server.get("/polls", &http.Cookie{Name: testCookieName, Value: token})
	require.Equal(t, http.StatusOK, recorder.Code)
	refreshed := responseCookie(recorder, testCookieName)
	require.NotNil(t, refreshed)
	require.NotEqual(t, token, refreshed.Value)

	fresh := server.get("/polls", server.sessionCookie(t, account))
	require.Nil(t, responseCookie(fresh, testCookieName))
}

func TestExpiredSessionIsClearedAndLoggedAtInfoLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	server := newTestServer(t, zap.New(core))
	account := server.signUp(t, "ada@example.com", "")

	expiredIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
		Clock:         func() time.Time { return testNow.Add(-2 * time.Hour) },
	})
	token, _, err := expiredIssuer.IssueSessionToken(context.Background(), auth.SessionIdentity{UserID: account.ID})
	require.NoError(t, err)

	recorder := server.get("/dashboard", &http.Cookie{Name: testCookieName, Value: token})
	require.Equal(t, http.StatusFound, recorder.Code)
	require.Equal(t, "/auth/login?redirect=/dashboard", recorder.Header().Get("Location"))
	cleared := responseCookie(recorder, testCookieName)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)

	entries := logs.FilterMessage("session validation failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)

	requests := logs.FilterMessage("http request").All()
	require.Len(t, requests, 1)
	require.Equal(t, "/dashboard", requests[0].ContextMap()["path"])
	require.EqualValues(t, http.StatusFound, requests[0].ContextMap()["status"])
}

func TestTamperedSessionIsLoggedAtWarnLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	server := newTestServer(t, zap.New(core))

	recorder := server.get("/polls", &http.Cookie{Name: testCookieName, Value: "not-a-token"})
	require.Equal(t, http.StatusOK, recorder.Code)

	entries := logs.FilterMessage("session validation failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
}
