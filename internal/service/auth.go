package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
	"github.com/totegamma/attestlend/jwt"
)

var tracer = otel.Tracer("auth")

type AuthService struct {
	config domain.Config
	now    func() time.Time
}

func NewAuthService(config domain.Config) *AuthService {
	return &AuthService{
		config: config,
		now:    time.Now,
	}
}

type AuthResult struct {
	Address common.Address
}

func (s *AuthService) AuthJwt(ctx context.Context, token string) (*AuthResult, error) {
	_, span := tracer.Start(ctx, "Auth.Service.AuthJwt")
	defer span.End()

	header, claims, err := jwt.Validate(token, s.now())
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt validation failed"))
		return nil, err
	}

	if claims.Audience != s.config.FQDN {
		err := fmt.Errorf("jwt audience mismatch: expected %s, got %s", s.config.FQDN, claims.Audience)
		span.RecordError(err)
		return nil, err
	}

	if claims.Subject != jwt.Subject {
		err := fmt.Errorf("invalid subject")
		span.RecordError(err)
		return nil, err
	}

	keyID := header.KeyID
	if keyID == "" {
		keyID = claims.Issuer
	}

	address, err := attestlend.ParseAddress(keyID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &AuthResult{Address: address}, nil
}
