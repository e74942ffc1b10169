package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"

	u "github.com/pulsejet/cerium-engine/utils"
)

// Claims : JWT claims stored on client side
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// LoginRequest : body of a login call
type LoginRequest struct {
	UserID string `json:"user_id"`
}

// Login : GET returns the current user, POST issues a session cookie.
// Credential checks belong to the identity provider in front of this API.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		uid := h.GetUserID(w, r, true)
		if uid == "" {
			return
		}
		u.Respond(w, map[string]interface{}{"user_id": uid}, 200)
		return
	}

	req := &LoginRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		u.Respond(w, u.Message(false, err.Error()), 400)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		u.Respond(w, u.Message(false, "user_id is required"), 400)
		return
	}

	if err := h.SetCookie(w, req.UserID); err != nil {
		log.WithError(err).Error("signing session token")
		u.Respond(w, u.Message(false, "Could not create session"), 500)
		return
	}
	log.WithField("user", req.UserID).Info("logged in")
	u.Respond(w, map[string]interface{}{"user_id": req.UserID}, 200)
}

// Logout : API handler for logging out
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:    "token",
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}

// GetUserID : helper function to get the claimed user from the JWT cookie.
// With throw set, a missing or bad token writes the error status.
func (h *Handler) GetUserID(w http.ResponseWriter, r *http.Request, throw bool) string {
	c, err := r.Cookie("token")
	if err != nil {
		if throw {
			u.Respond(w, u.Message(false, "Unauthorized: Please login to continue"), http.StatusUnauthorized)
		}
		return ""
	}

	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(c.Value, claims, func(token *jwt.Token) (interface{}, error) {
		return h.jwtKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		if throw {
			u.Respond(w, u.Message(false, "Unauthorized: Invalid session"), http.StatusUnauthorized)
		}
		return ""
	}
	return claims.UserID
}

// SetCookie : helper function to set JWT cookie
func (h *Handler) SetCookie(w http.ResponseWriter, uid string) error {
	expirationTime := time.Now().Add(24 * time.Hour)

	claims := &Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtKey)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    tokenString,
		Path:     "/",
		Expires:  expirationTime,
		HttpOnly: true,
	})
	return nil
}
