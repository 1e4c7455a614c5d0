package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const loginPath = "/auth/login"

var (
	protectedPrefixes = []string{"/polls/create", "/dashboard"}
	queryPathEscaper  = strings.NewReplacer("%2F", "/")
)

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

func (h *httpHandler) recoverPanics(c *gin.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			h.logger.Error("request panicked",
				zap.Any("panic", recovered),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path))
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	}()
	c.Next()
}

func (h *httpHandler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Info("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("duration", time.Since(start)),
		zap.String("client_ip", c.ClientIP()))
}

// loadSession resolves the session cookie, refreshing it once half of its lifetime has passed.
func (h *httpHandler) loadSession(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	switch {
	case err == nil:
		c.Set(userIDContextKey, claims.UserID)
		c.Set(sessionClaimsContextKey, claims)
		if auth.ShouldRefresh(claims, h.clock(), h.tokenTTL) {
			h.refreshSession(c, claims)
		}
	case errors.Is(err, auth.ErrMissingSessionToken):
	case errors.Is(err, auth.ErrExpiredSessionToken):
		h.logger.Info("session validation failed", zap.Error(err))
		h.clearSessionCookie(c)
	default:
		h.logger.Warn("session validation failed", zap.Error(err))
		h.clearSessionCookie(c)
	}
	c.Next()
}

func (h *httpHandler) refreshSession(c *gin.Context, claims auth.SessionClaims) {
	err := h.startSession(c, claims.Identity())
	if err != nil {
		h.logger.Warn("session refresh failed", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}

// guardRoutes sends anonymous visitors of protected pages to the login form and
// signed-in visitors of the auth pages home.
func (h *httpHandler) guardRoutes(c *gin.Context) {
	path := c.Request.URL.Path
	signedIn := currentUserID(c) != ""

	if isAuthPath(path) && signedIn {
		c.Redirect(http.StatusFound, "/")
		c.Abort()
		return
	}
	if isProtectedPath(path) && !signedIn {
		redirectToLogin(c, path)
		return
	}
	c.Next()
}

// requireSession protects individual actions outside the guarded prefixes.
func (h *httpHandler) requireSession(c *gin.Context) {
	if currentUserID(c) == "" {
		redirectToLogin(c, c.Request.URL.Path)
		return
	}
	c.Next()
}

func redirectToLogin(c *gin.Context, returnTo string) {
	target := loginPath + "?redirect=" + queryPathEscaper.Replace(url.QueryEscape(returnTo))
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

func isProtectedPath(path string) bool {
	for _, prefix := range protectedPrefixes {
		if matchesPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}

func matchesPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// safeRedirect accepts only local absolute paths.
func safeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	for index := 0; index < len(target); index++ {
		if target[index] < 0x20 || target[index] == 0x7f || target[index] == '\\' {
			return "/"
		}
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || parsed.User != nil {
		return "/"
	}
	if !strings.HasPrefix(parsed.Path, "/") || strings.HasPrefix(parsed.Path, "//") {
		return "/"
	}
	return target
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

func currentClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(sessionClaimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}
