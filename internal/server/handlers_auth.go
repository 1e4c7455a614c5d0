package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/polly/internal/accounts"
	"github.com/MarcoPoloResearchLab/polly/internal/auth"
	"github.com/MarcoPoloResearchLab/polly/internal/web"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleLoginForm(c *gin.Context) {
	h.render(c, http.StatusOK, web.PageLogin, gin.H{
		"Redirect": safeRedirect(c.Query("redirect")),
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	email := c.PostForm("email")
	redirect := safeRedirect(c.PostForm("redirect"))

	account, err := h.accounts.SignIn(c.Request.Context(), email, c.PostForm("password"))
	if err != nil {
		if !errors.Is(err, accounts.ErrInvalidCredentials) {
			h.logger.Error("sign in failed", zap.Error(err))
		}
		h.addFlash(c, flashKindError, signInMessage(err))
		h.render(c, http.StatusUnauthorized, web.PageLogin, gin.H{
			"Email":    email,
			"Redirect": redirect,
		})
		return
	}

	displayName := ""
	if profile, err := h.accounts.Profile(c.Request.Context(), account.ID); err == nil {
		displayName = profile.DisplayName()
	} else if !errors.Is(err, accounts.ErrProfileNotFound) {
		h.logger.Warn("profile lookup failed", zap.String("user_id", account.ID), zap.Error(err))
	}

	if err := h.startSession(c, auth.SessionIdentity{
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: displayName,
	}); err != nil {
		h.logger.Error("session issue failed", zap.String("user_id", account.ID), zap.Error(err))
		h.redirectWithFlash(c, loginPath, flashKindError, genericFailureMessage)
		return
	}

	h.events.Notify(account.ID, AuthEventSignedIn)
	h.logger.Info("user signed in", zap.String("user_id", account.ID))
	h.redirectWithFlash(c, redirect, flashKindSuccess, "Welcome back!")
}

func (h *httpHandler) handleRegisterForm(c *gin.Context) {
	h.render(c, http.StatusOK, web.PageRegister, nil)
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	input := accounts.SignUpInput{
		Email:           c.PostForm("email"),
		Password:        c.PostForm("password"),
		ConfirmPassword: c.PostForm("confirm_password"),
		FullName:        c.PostForm("full_name"),
	}

	account, err := h.accounts.SignUp(c.Request.Context(), input)
	if err != nil {
		message, known := signUpMessage(err)
		if !known {
			h.logger.Error("sign up failed", zap.Error(err))
		}
		h.addFlash(c, flashKindError, message)
		h.render(c, http.StatusUnprocessableEntity, web.PageRegister, gin.H{
			"Email":    input.Email,
			"FullName": input.FullName,
		})
		return
	}

	h.logger.Info("account registered", zap.String("user_id", account.ID))
	h.redirectWithFlash(c, loginPath, flashKindSuccess, "Registration successful! Please sign in.")
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	userID := currentUserID(c)
	h.clearSessionCookie(c)
	if userID != "" {
		h.events.Notify(userID, AuthEventSignedOut)
		h.logger.Info("user signed out", zap.String("user_id", userID))
	}
	h.redirectWithFlash(c, loginPath, flashKindSuccess, "You have been signed out.")
}

func signInMessage(err error) string {
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		return "Invalid email or password."
	}
	return genericFailureMessage
}

func signUpMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, accounts.ErrInvalidEmail):
		return "Please enter a valid email address.", true
	case errors.Is(err, accounts.ErrWeakPassword):
		return "Password must be at least 6 characters.", true
	case errors.Is(err, accounts.ErrPasswordTooLong):
		return "Password is too long.", true
	case errors.Is(err, accounts.ErrPasswordMismatch):
		return "Passwords do not match.", true
	case errors.Is(err, accounts.ErrEmailTaken):
		return "An account with this email already exists.", true
	case errors.Is(err, accounts.ErrFullNameTooLong):
		return "Full name is too long.", true
	}
	return genericFailureMessage, false
}
