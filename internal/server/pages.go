package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/polly/internal/web"
	"github.com/gin-gonic/gin"
)

const genericFailureMessage = "Something went wrong, please try again."

func (h *httpHandler) render(c *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if claims, ok := currentClaims(c); ok {
		data["Viewer"] = &web.Viewer{
			ID:    claims.UserID,
			Email: claims.UserEmail,
			Name:  claims.UserDisplayName,
		}
	}
	data["Flashes"] = h.popFlashes(c)
	c.HTML(status, page, data)
}

func (h *httpHandler) renderError(c *gin.Context, status int, message string) {
	h.render(c, status, web.PageError, gin.H{
		"Status":  status,
		"Message": message,
	})
}

func (h *httpHandler) handleNotFound(c *gin.Context) {
	h.renderError(c, http.StatusNotFound, "The page you are looking for does not exist.")
}

func (h *httpHandler) handleHome(c *gin.Context) {
	h.render(c, http.StatusOK, web.PageHome, nil)
}
