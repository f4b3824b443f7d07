package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/diagnosis/agency-portal/pkg/auth"
	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/diagnosis/agency-portal/pkg/logger"
)

type AdminService interface {
	Login(ctx context.Context, email, password string) (token string, expiresAt time.Time, err error)
}

type adminService struct {
	cfg config.AuthConfig
}

func NewAdminService(cfg config.AuthConfig) AdminService {
	return &adminService{cfg: cfg}
}

func (s *adminService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	if s.cfg.AdminPasswordHash == "" {
		logger.WarnContext(ctx, "Admin login attempted but ADMIN_PASSWORD_HASH is not set")
		return "", time.Time{}, auth.ErrInvalidCredentials
	}

	email = strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.cfg.AdminEmail)) == 1
	// Always run the hash comparison so timing does not reveal whether the email matched.
	passErr := auth.CheckPassword(password, s.cfg.AdminPasswordHash)
	if !emailOK || passErr != nil {
		logger.SecurityContext(ctx, "admin_login_failed", "email", email)
		return "", time.Time{}, auth.ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.cfg.AdminSessionTTL)
	token, err := auth.NewAccessToken(email, auth.RoleAdmin, s.cfg.JWTSecret, s.cfg.AdminSessionTTL)
	if err != nil {
		return "", time.Time{}, err
	}

	logger.InfoContext(ctx, "Admin logged in", "email", email)
	return token, expiresAt, nil
}
