package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/accounts"
	"github.com/MarcoPoloResearchLab/polly/internal/auth"
	"github.com/MarcoPoloResearchLab/polly/internal/polls"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"go.uber.org/zap"
)

const (
	userIDContextKey        = "polly_user_id"
	sessionClaimsContextKey = "polly_session_claims"
	flashCookieName         = "polly_flash"
)

var (
	errMissingAccounts         = errors.New("accounts service dependency required")
	errMissingPolls            = errors.New("polls service dependency required")
	errMissingTokenIssuer      = errors.New("token issuer dependency required")
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingRenderer         = errors.New("html renderer dependency required")
	errMissingFlashSecret      = errors.New("flash secret required")
)

// AccountService is the account store the pages sign users in against.
type AccountService interface {
	SignUp(ctx context.Context, input accounts.SignUpInput) (accounts.Account, error)
	SignIn(ctx context.Context, email string, password string) (accounts.Account, error)
	Profile(ctx context.Context, userID string) (accounts.Profile, error)
	ProfilesByID(ctx context.Context, ids []string) (map[string]accounts.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update accounts.ProfileUpdate) (accounts.Profile, error)
}

// PollService is the poll store behind the poll pages and the results API.
type PollService interface {
	CreatePoll(ctx context.Context, input polls.CreatePollInput) (polls.Poll, error)
	ListPolls(ctx context.Context, opts polls.ListOptions) ([]polls.PollSummary, error)
	ListPollsByOwner(ctx context.Context, userID string) ([]polls.PollSummary, error)
	GetPoll(ctx context.Context, pollID string) (polls.PollDetail, error)
	CastVote(ctx context.Context, input polls.VoteInput) (polls.Vote, error)
	HasVoted(ctx context.Context, pollID string, userID string, voterIP string) (bool, error)
	SetActive(ctx context.Context, pollID string, userID string, active bool) error
	CreateShareLink(ctx context.Context, pollID string, userID string) (polls.QRCode, error)
	ActiveShareLinks(ctx context.Context, pollID string) ([]polls.QRCode, error)
}

// SessionTokenIssuer signs session cookies.
type SessionTokenIssuer interface {
	IssueSessionToken(ctx context.Context, identity auth.SessionIdentity) (string, time.Time, error)
}

// SessionTokenValidator reads and validates session cookies.
type SessionTokenValidator interface {
	CookieName() string
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Accounts         AccountService
	Polls            PollService
	TokenIssuer      SessionTokenIssuer
	SessionValidator SessionTokenValidator
	Renderer         render.HTMLRender
	Events           *AuthEventDispatcher
	FlashSecret      string
	CookieSecure     bool
	TokenTTL         time.Duration
	Clock            func() time.Time
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin engine serving pages, the results API and the session event stream.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.Polls == nil {
		return nil, errMissingPolls
	}
	if deps.TokenIssuer == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Renderer == nil {
		return nil, errMissingRenderer
	}
	if deps.FlashSecret == "" {
		return nil, errMissingFlashSecret
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	events := deps.Events
	if events == nil {
		events = NewAuthEventDispatcher(AuthEventDispatcherConfig{Clock: clock})
	}
	tokenTTL := deps.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}

	handler := &httpHandler{
		accounts:     deps.Accounts,
		polls:        deps.Polls,
		tokens:       deps.TokenIssuer,
		sessions:     deps.SessionValidator,
		events:       events,
		cookieSecure: deps.CookieSecure,
		tokenTTL:     tokenTTL,
		clock:        clock,
		logger:       logger,
	}

	flashStore := cookie.NewStore([]byte(deps.FlashSecret))
	flashStore.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	router := gin.New()
	router.HTMLRender = deps.Renderer
	router.Use(handler.recoverPanics)
	router.Use(handler.logRequests)
	router.Use(sessions.Sessions(flashCookieName, flashStore))
	router.Use(handler.loadSession)
	router.Use(handler.guardRoutes)
	router.NoRoute(handler.handleNotFound)

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/", handler.handleHome)

	router.GET("/polls", handler.handlePollList)
	router.GET("/polls/create", handler.handlePollCreateForm)
	router.POST("/polls/create", handler.handlePollCreate)
	router.GET("/polls/:id", handler.handlePollDetail)
	router.POST("/polls/:id/vote", handler.handleVote)
	router.POST("/polls/:id/close", handler.requireSession, handler.handlePollClose)
	router.POST("/polls/:id/reopen", handler.requireSession, handler.handlePollReopen)
	router.POST("/polls/:id/share", handler.requireSession, handler.handlePollShare)

	router.GET("/auth/login", handler.handleLoginForm)
	router.POST("/auth/login", handler.handleLogin)
	router.GET("/auth/register", handler.handleRegisterForm)
	router.POST("/auth/register", handler.handleRegister)

	router.POST("/session/logout", handler.handleLogout)
	router.GET("/session/events", handler.handleSessionEvents)

	router.GET("/dashboard", handler.handleDashboard)
	router.POST("/dashboard/profile", handler.handleProfileUpdate)

	api := router.Group("/api")
	api.Use(corsMiddleware())
	api.GET("/polls/:id/results", handler.handlePollResults)
	api.OPTIONS("/polls/:id/results", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	return router, nil
}

type httpHandler struct {
	accounts     AccountService
	polls        PollService
	tokens       SessionTokenIssuer
	sessions     SessionTokenValidator
	events       *AuthEventDispatcher
	cookieSecure bool
	tokenTTL     time.Duration
	clock        func() time.Time
	logger       *zap.Logger
}
