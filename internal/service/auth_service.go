package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/MorseWayne/storefront/internal/config"
	"github.com/MorseWayne/storefront/internal/domain"
)

// ErrInvalidCredentials 用户名或密码错误
var ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)

// AuthService 后台管理员认证
type AuthService interface {
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

type authService struct {
	admin  config.AdminConfig
	jwt    JWTService
	logger *zap.Logger
}

// NewAuthService 创建认证服务，管理员账号来自配置
func NewAuthService(admin config.AdminConfig, jwt JWTService, logger *zap.Logger) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{admin: admin, jwt: jwt, logger: logger}
}

// Login 校验用户名和 bcrypt 密码哈希，成功后签发令牌对
func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if s.admin.Username == "" || s.admin.PasswordHash == "" {
		s.logger.Warn("admin login attempted but no admin account is configured")
		return nil, ErrInvalidCredentials
	}

	// 用户名不匹配时仍执行一次哈希比较，使响应时间一致
	hash := []byte(s.admin.PasswordHash)
	err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password))
	if req.Username != s.admin.Username {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("failed to compare password", zap.Error(err))
		return nil, fmt.Errorf("compare password: %w", err)
	}

	user := &domain.User{ID: s.admin.Username, Username: s.admin.Username, Role: domain.UserRoleAdmin}
	pair, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, fmt.Errorf("generate token pair: %w", err)
	}

	s.logger.Info("admin logged in", zap.String("username", user.Username))
	return &domain.LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh 使用刷新令牌换取新的令牌对
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.jwt.RefreshTokenPair(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return pair, nil
}
