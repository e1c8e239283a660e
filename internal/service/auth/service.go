// Package auth 提供邮箱白名单内的登录认证
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ashwinyue/sanctuary/internal/config"
	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/repository"
)

var (
	// ErrNotAllowed 邮箱不在白名单中
	ErrNotAllowed = errors.New("email is not allowed")
	// ErrInvalidCredentials 邮箱或密码错误
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken 令牌无效、过期或已撤销
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmailTaken 邮箱已注册
	ErrEmailTaken = errors.New("user with this email already exists")
	// ErrAccountDisabled 账号已停用
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrInvalidTimezone 时区名称无效
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// Service 认证服务
type Service struct {
	repo     repository.AuthStore
	cfg      *config.AuthConfig
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// NewService 创建认证服务
func NewService(repo repository.AuthStore, cfg *config.AuthConfig) *Service {
	ttl := time.Duration(cfg.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		cfg:      cfg,
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: ttl,
		now:      time.Now,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	User      *model.UserInfo `json:"user"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// UpdateProfileRequest 更新资料请求
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Timezone    *string `json:"timezone"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 注册用户，只接受白名单中的邮箱
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*model.UserInfo, error) {
	email := normalizeEmail(req.Email)
	if !s.cfg.IsAllowed(email) {
		return nil, ErrNotAllowed
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Timezone:     timezone,
		PasswordHash: string(hashedPassword),
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user.ToUserInfo(), nil
}

// Login 用户登录
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	email := normalizeEmail(req.Email)
	if !s.cfg.IsAllowed(email) {
		return nil, ErrNotAllowed
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issueToken(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{User: user.ToUserInfo(), Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateToken 验证令牌并返回用户
//
// 白名单在每次请求时重新检查，移出白名单的用户立即失效。
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*model.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	// 检查令牌是否被撤销
	if _, err := s.repo.GetTokenByValue(ctx, tokenString); err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if !s.cfg.IsAllowed(user.Email) {
		return nil, ErrNotAllowed
	}
	return user, nil
}

// Logout 撤销令牌
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	if err := s.repo.RevokeToken(ctx, tokenString); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ChangePassword 修改密码并撤销所有令牌
func (s *Service) ChangePassword(ctx context.Context, userID string, req *ChangePasswordRequest) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hashedPassword)
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return s.repo.RevokeTokensByUserID(ctx, userID)
}

// GetProfile 获取用户资料
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.UserInfo, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user.ToUserInfo(), nil
}

// UpdateProfile 更新显示名和时区
func (s *Service) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*model.UserInfo, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if req.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, *req.Timezone)
		}
		user.Timezone = *req.Timezone
	}
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user.ToUserInfo(), nil
}

// CleanupTokens 删除过期和已撤销的令牌
func (s *Service) CleanupTokens(ctx context.Context) error {
	return s.repo.DeleteExpiredTokens(ctx)
}

// issueToken 签发并记录访问令牌
func (s *Service) issueToken(ctx context.Context, user *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"jti":     uuid.New().String(),
		"iat":     now.Unix(),
		"exp":     expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	if err := s.repo.CreateToken(ctx, &model.AuthToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Token:     signed,
		ExpiresAt: expiresAt.UTC(),
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to save token: %w", err)
	}
	return signed, expiresAt, nil
}
