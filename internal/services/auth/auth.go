// Package auth отвечает за регистрацию, вход и проверку JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/jwt"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/password"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUser сохраняет нового пользователя и возвращает его UID.
	CreateUser(ctx context.Context, user models.User) (string, error)
	// GetUserByUsername ищет пользователя по имени или email, nil если не найден.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// LoginResult токен и профиль вошедшего пользователя.
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Service отвечает за регистрацию, авторизацию и валидацию JWT.
type Service struct {
	users    UserRepository
	jwtMaker jwt.Maker
	log      *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(users UserRepository, jwtMaker jwt.Maker, log *slog.Logger) *Service {
	return &Service{users: users, jwtMaker: jwtMaker, log: log}
}

// Register создает клиента с хэшированным паролем и возвращает его UID.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (string, error) {
	const op = "auth.Register"
	hashed, err := password.GetHash(req.Password)
	if errors.Is(err, password.ErrTooLong) {
		return "", apperr.Validation("password must be at most %d bytes", password.MaxLength)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	user := models.User{
		UID:          uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hashed,
		Role:         models.RoleClient,
		FullName:     req.FullName,
		Phone:        req.Phone,
	}
	uid, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user registered", slog.String("user_uid", uid))
	return uid, nil
}

// Login проверяет пароль пользователя и выдает JWT.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*LoginResult, error) {
	const op = "auth.Login"
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err := password.CompareHash(user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			s.log.Error("stored password hash is unusable", slog.String("user_uid", user.UID), sl.Err(err))
		}
		return nil, apperr.Unauthorized("invalid credentials")
	}
	token, err := s.jwtMaker.GenerateToken(user.Username, string(user.Role), user.UID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

// ValidateToken проверяет JWT и возвращает актора.
func (s *Service) ValidateToken(_ context.Context, token string) (models.Actor, error) {
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return models.Actor{}, apperr.Unauthorized("invalid token")
	}
	role := models.Role(claims.Role)
	if !role.Valid() || claims.UserUID == "" {
		return models.Actor{}, apperr.Unauthorized("invalid token claims")
	}
	return models.Actor{UID: claims.UserUID, Role: role}, nil
}
