package services

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/infrastructure/storage"
	goerrors "errors"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	Login(username, password string) (Token, error)
	Register(username, password string) (Token, error)
}

type AuthService struct {
	userRepository storage.IUserRepository
	tokens         *auth.TokenManager
	log            *slog.Logger
}

type Token string

func (t Token) String() string {
	return string(t)
}

func NewAuthService(log *slog.Logger, repo storage.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{userRepository: repo, tokens: tokens, log: log}
}

func (s *AuthService) Register(username, password string) (Token, error) {
	// Rules are checked before any expensive hashing.
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return "", err
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	if _, err := s.userRepository.CreateUser(username, hashedPassword); err != nil {
		return "", err
	}
	s.log.Info("User registered", "username", username)

	token, err := s.tokens.GenerateToken(username, []string{"user"})
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

// Login never tells an unknown user from a wrong password.
func (s *AuthService) Login(username, password string) (Token, error) {
	user, err := s.userRepository.GetUserByUsername(username)
	if goerrors.Is(err, errors.ErrInvalidCredentials) {
		return "", errors.ErrInvalidCredentials
	}
	if err != nil {
		s.log.Error("Unable to load user", "username", username, "error", err)
		if !goerrors.Is(err, errors.ErrStore) {
			err = fmt.Errorf("%w: %w", errors.ErrStore, err)
		}
		return "", err
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.Username, user.Roles)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}
