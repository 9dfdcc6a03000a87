package models

import "github.com/golang-jwt/jwt/v4"

// Identity is the authenticated member behind a request
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}
