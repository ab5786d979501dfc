package service

import (
	"context"

	"jarvis/internal/dto"
	"jarvis/pkg/auth"

	"go.uber.org/zap"
)

const adminSubject = "admin"

// AdminService issues bearer tokens for the administrative endpoints.
type AdminService struct {
	passwordHash string
	jwtManager   *auth.JWTManager
	logger       *zap.Logger
}

func NewAdminService(passwordHash string, jwtManager *auth.JWTManager, logger *zap.Logger) *AdminService {
	if passwordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH is empty, admin login is disabled")
	}
	return &AdminService{
		passwordHash: passwordHash,
		jwtManager:   jwtManager,
		logger:       logger,
	}
}

func (s *AdminService) Login(ctx context.Context, req *dto.AdminLoginRequest) (*dto.AdminLoginResponse, error) {
	if !auth.CheckPasswordHash(req.Password, s.passwordHash) {
		s.logger.Warn("Admin login rejected")
		return nil, ErrUnauthorized
	}

	accessToken, err := s.jwtManager.GenerateToken(adminSubject, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	return &dto.AdminLoginResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwtManager.GetTokenDuration().Seconds()),
	}, nil
}
