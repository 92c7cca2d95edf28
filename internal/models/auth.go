package models

import "github.com/golang-jwt/jwt/v5"

// UserRole scopes what an authenticated editor may do.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleEditor UserRole = "EDITOR"
)

// JWTClaims is the token payload attached to authenticated requests. Tokens
// are issued by the external identity service; this API only validates them.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
