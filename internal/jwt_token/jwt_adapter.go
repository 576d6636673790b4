package jwttoken

import (
	"trustrails/internal/platform/middleware"
	id "trustrails/pkg/domain"
)

func ToMiddlewareClaims(claims *Claims) *middleware.Claims {
	actor := claims.Subject
	if actor == "" {
		actor = "custodian:" + claims.CustodianID
	}
	return &middleware.Claims{
		CustodianID: id.CustodianID(claims.CustodianID),
		ActorID:     id.ActorID(actor),
	}
}

// JWTServiceAdapter satisfies middleware.TokenValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
