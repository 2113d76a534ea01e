package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

