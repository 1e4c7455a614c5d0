package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/accounts"
	"github.com/MarcoPoloResearchLab/polly/internal/auth"
	"github.com/MarcoPoloResearchLab/polly/internal/database"
	"github.com/MarcoPoloResearchLab/polly/internal/polls"
	"github.com/MarcoPoloResearchLab/polly/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "polly_session"
	testTokenTTL      = 7 * 24 * time.Hour
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	handler  http.Handler
	db       *gorm.DB
	accounts *accounts.Service
	polls    *polls.Service
	issuer   *auth.TokenIssuer
	events   *AuthEventDispatcher
}

func newTestServer(t *testing.T, logger *zap.Logger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "polly.db"), logger)
	require.NoError(t, err)

	clock := func() time.Time { return testNow }
	ids := polls.NewUUIDProvider()
	accountService, err := accounts.NewService(accounts.ServiceConfig{Database: db, Clock: clock, IDProvider: ids, Logger: logger})
	require.NoError(t, err)
	pollService, err := polls.NewService(polls.ServiceConfig{
		Database:     db,
		Clock:        clock,
		IDProvider:   ids,
		Logger:       logger,
		ShareBaseURL: "https://polly.example.com",
		ShareTTL:     24 * time.Hour,
	})
	require.NoError(t, err)

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      testTokenTTL,
		Clock:         clock,
	})
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
		Clock:         clock,
	})
	require.NoError(t, err)
	renderer, err := web.NewRenderer(clock)
	require.NoError(t, err)

	events := NewAuthEventDispatcher(AuthEventDispatcherConfig{})
	handler, err := NewHTTPHandler(Dependencies{
		Accounts:         accountService,
		Polls:            pollService,
		TokenIssuer:      issuer,
		SessionValidator: validator,
		Renderer:         renderer,
		Events:           events,
		FlashSecret:      "test-flash-secret",
		TokenTTL:         testTokenTTL,
		Clock:            clock,
		Logger:           logger,
	})
	require.NoError(t, err)

	return &testServer{
		handler:  handler,
		db:       db,
		accounts: accountService,
		polls:    pollService,
		issuer:   issuer,
		events:   events,
	}
}

func (s *testServer) signUp(t *testing.T, email string, fullName string) accounts.Account {
	t.Helper()
	account, err := s.accounts.SignUp(context.Background(), accounts.SignUpInput{
		Email:           email,
		Password:        "secret-password",
		ConfirmPassword: "secret-password",
		FullName:        fullName,
	})
	require.NoError(t, err)
	return account
}

func (s *testServer) sessionCookie(t *testing.T, account accounts.Account) *http.Cookie {
	t.Helper()
	token, _, err := s.issuer.IssueSessionToken(context.Background(), auth.SessionIdentity{
		UserID: account.ID,
		Email:  account.Email,
	})
	require.NoError(t, err)
	return &http.Cookie{Name: testCookieName, Value: token}
}

func (s *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return s.do(http.MethodGet, path, nil, cookies...)
}

func (s *testServer) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, path, form, cookies...)
}

func (s *testServer) do(method string, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var request *http.Request
	if form != nil {
		request = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		request = httptest.NewRequest(method, path, http.NoBody)
	}
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func responseCookie(recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			found = cookie
		}
	}
	return found
}
