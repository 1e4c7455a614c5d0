package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/auth"
	"github.com/MarcoPoloResearchLab/polly/internal/web"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	flashKindSuccess = "success"
	flashKindError   = "error"
)

func (h *httpHandler) startSession(c *gin.Context, identity auth.SessionIdentity) error {
	token, expiresAt, err := h.tokens.IssueSessionToken(c.Request.Context(), identity)
	if err != nil {
		return err
	}
	maxAge := int(expiresAt.Sub(h.clock()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *httpHandler) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *httpHandler) addFlash(c *gin.Context, kind string, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, kind)
	if err := session.Save(); err != nil {
		h.logger.Warn("flash save failed", zap.Error(err))
	}
}

func (h *httpHandler) popFlashes(c *gin.Context) []web.Flash {
	session := sessions.Default(c)
	var flashes []web.Flash
	for _, kind := range []string{flashKindSuccess, flashKindError} {
		for _, value := range session.Flashes(kind) {
			if message, ok := value.(string); ok {
				flashes = append(flashes, web.Flash{Kind: kind, Message: message})
			}
		}
	}
	if len(flashes) > 0 {
		if err := session.Save(); err != nil {
			h.logger.Warn("flash save failed", zap.Error(err))
		}
	}
	return flashes
}

func (h *httpHandler) redirectWithFlash(c *gin.Context, target string, kind string, message string) {
	h.addFlash(c, kind, message)
	c.Redirect(http.StatusFound, target)
}
