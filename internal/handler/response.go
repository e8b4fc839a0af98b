package handler

import (
	"time"

	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/service"
)

// requestTimeout bounds the store and cache calls of one request.
const requestTimeout = 5 * time.Second

// envelope wraps every successful JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(message string, data any) envelope {
	return envelope{Success: true, Message: message, Data: data}
}

// userView is the public rendering of a user; the password hash never
// leaves the service layer.
type userView struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	Phone      *string    `json:"phone,omitempty"`
	Role       model.Role `json:"role"`
	IsActive   bool       `json:"is_active"`
	IsVerified bool       `json:"is_verified"`
	Avatar     *string    `json:"avatar,omitempty"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func viewOf(u *model.User) userView {
	return userView{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Phone:      u.Phone,
		Role:       u.Role,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		Avatar:     u.Avatar,
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
	}
}

// tokensView is what a token-issuing endpoint returns.  With cookie delivery
// the token values are omitted from the body.
type tokensView struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Limited      bool   `json:"limited"`
}

func tokensOf(p *service.TokenPair, inCookies bool) tokensView {
	v := tokensView{TokenType: p.TokenType, ExpiresIn: p.ExpiresIn, Limited: p.Limited}
	if !inCookies {
		v.AccessToken = p.AccessToken
		v.RefreshToken = p.RefreshToken
	}
	return v
}
