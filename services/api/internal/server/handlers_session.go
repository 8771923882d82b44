package server

import (
	"errors"
	"net/http"

	"nebulaone/pkg/domain"
	"nebulaone/services/api/internal/app"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Name     string `json:"name" validate:"max=100"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type subscriptionRequest struct {
	UserID               string `json:"userId"`
	StripeCustomerID     string `json:"stripeCustomerId" validate:"required_without=StripeSubscriptionID"`
	StripeSubscriptionID string `json:"stripeSubscriptionId"`
}

// sessionResponse is the user plus the session token for bearer clients.
type sessionResponse struct {
	domain.User
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.registerLimiter, "register", "too many registration attempts") {
		s.audit(r, "session.register", "rate_limited")
		return
	}
	var req registerRequest
	if !s.decode(w, r, &req) {
		s.audit(r, "session.register", "fail", "reason", "invalid_request")
		return
	}
	user, token, err := s.app.Register(app.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Name:     req.Name,
	})
	if err != nil {
		s.audit(r, "session.register", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "session.register", "success", "user_id", user.ID, "role", user.Role)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, sessionResponse{User: user, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "login", "too many login attempts") {
		s.audit(r, "session.login", "rate_limited")
		return
	}
	var req loginRequest
	if !s.decode(w, r, &req) {
		s.audit(r, "session.login", "fail", "reason", "invalid_request")
		return
	}
	user, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.audit(r, "session.login", "fail", "username", req.Username)
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "session.login", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Logout(s.sessionToken(r)); err != nil {
		s.audit(r, "session.logout", "fail")
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "session.logout", "success")
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.app.UserFromToken(s.sessionToken(r))
	if errors.Is(err, app.ErrUnauthorized) {
		writeMessage(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request, actor domain.User) {
	var req subscriptionRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.app.UpdateSubscription(actor, app.SubscriptionInput{
		UserID:               req.UserID,
		StripeCustomerID:     req.StripeCustomerID,
		StripeSubscriptionID: req.StripeSubscriptionID,
	})
	if err != nil {
		s.audit(r, "billing.subscription.update", "fail", "user_id", actor.ID, "target_id", req.UserID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "billing.subscription.update", "success", "user_id", actor.ID, "target_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.app.ListUsers()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
