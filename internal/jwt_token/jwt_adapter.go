package jwttoken

import (
	"subsnap/internal/platform/middleware"
)

func ToMiddlewareClaims(claims *Claims) *middleware.SchedulerClaims {
	return &middleware.SchedulerClaims{
		Subject: claims.Subject,
		Scope:   claims.Scope,
		JTI:     claims.ID,
	}
}

// JWTServiceAdapter exposes JWTService as a middleware.TokenValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.SchedulerClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
