package service

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/portfolio/internal/config"
	"github.com/totegamma/portfolio/internal/domain"
)

var tracer = otel.Tracer("service")

// Claims is the token payload issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
}

// AuthService turns bearer tokens into requesters. Tokens are issued
// elsewhere; only the signature, expiry and subject are checked here.
type AuthService struct {
	secret      []byte
	defaultRole domain.Role
}

func NewAuthService(config config.Auth) *AuthService {
	role := domain.ParseRole(config.DefaultRole)
	return &AuthService{
		secret:      []byte(config.JwtSecret),
		defaultRole: role,
	}
}

func (s *AuthService) AuthJwt(ctx context.Context, token string) (domain.Requester, error) {
	_, span := tracer.Start(ctx, "Auth.Service.AuthJwt")
	defer span.End()

	if len(s.secret) == 0 {
		err := fmt.Errorf("jwt secret is not configured")
		span.RecordError(err)
		return domain.Anonymous, err
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt validation failed"))
		return domain.Anonymous, err
	}

	if claims.Subject == "" {
		err := fmt.Errorf("invalid subject")
		span.RecordError(err)
		return domain.Anonymous, err
	}

	role := s.defaultRole
	if claims.AppMetadata.Role != "" {
		role = domain.ParseRole(claims.AppMetadata.Role)
	}

	return domain.Requester{ID: claims.Subject, Role: role}, nil
}
