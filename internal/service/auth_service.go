package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fitcoach/internal/config"
	"fitcoach/internal/ids"
	"fitcoach/internal/models"
	"fitcoach/internal/repository"
	"fitcoach/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSessionInvalid     = errors.New("session invalid")
)

const refreshTokenBytes = 64

type AuthService struct {
	users    UserStore
	sessions SessionStore
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(users UserStore, sessions SessionStore, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        models.UserRole
	DeviceID    string
	DeviceName  string
	IPAddress   string
	UserAgent   string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
	DeviceID     string
	SessionID    string
}

// Register creates an account and opens its first device session. Only the
// client and trainer roles can be self-assigned.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("%w: email and password required", ErrInvalidInput)
	}

	role := input.Role
	switch role {
	case "":
		role = models.UserRoleClient
	case models.UserRoleClient, models.UserRoleTrainer:
	default:
		return AuthResult{}, fmt.Errorf("%w: role %q cannot be self-assigned", ErrInvalidInput, role)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(input.Email, "@", 2)[0]
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Roles:        []models.UserRole{role},
		Status:       models.UserStatusActive,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, err
	}

	deviceName := input.DeviceName
	if deviceName == "" {
		deviceName = "New Device"
	}
	return s.createSession(ctx, user, input.DeviceID, deviceName, input.IPAddress, input.UserAgent)
}

type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	deviceName := input.DeviceName
	if deviceName == "" {
		deviceName = "Unknown Device"
	}

	return s.createSession(ctx, user, input.DeviceID, deviceName, input.IPAddress, input.UserAgent)
}

func (s *AuthService) createSession(
	ctx context.Context,
	user models.User,
	deviceID string,
	deviceName string,
	ipAddress string,
	userAgent string,
) (AuthResult, error) {
	if deviceID == "" {
		deviceID = ids.New()
	}

	refreshToken, refreshHash, err := security.GenerateRefreshToken(refreshTokenBytes)
	if err != nil {
		return AuthResult{}, err
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		DeviceID:         deviceID,
		DeviceName:       deviceName,
		RefreshTokenHash: refreshHash,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().UTC().Add(s.cfg.Security.JWTRefreshTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, fmt.Errorf("create session: %w", err)
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	accessToken, err := s.issueAccessToken(user, session)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		DeviceID:     deviceID,
		SessionID:    session.ID,
	}, nil
}

func (s *AuthService) issueAccessToken(user models.User, session models.Session) (string, error) {
	return security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		session.ID,
		session.DeviceID,
		user.RoleNames(),
		s.cfg.Security.JWTAccessTTL,
	)
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	if s.cfg.Security.MaxSessions <= 0 {
		return nil
	}
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.cfg.Security.MaxSessions {
		return nil
	}

	return s.sessions.DeleteOldestSessions(ctx, userID, s.cfg.Security.MaxSessions)
}

// Refresh exchanges a refresh token for a new access token, rotating the
// refresh token in place.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, ErrSessionInvalid
	}

	session, err := s.sessions.FindByRefreshHash(ctx, security.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return AuthResult{}, ErrSessionInvalid
		}
		return AuthResult{}, err
	}

	if session.ExpiresAt.Before(time.Now()) {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return AuthResult{}, ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrSessionInvalid
		}
		return AuthResult{}, err
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	nextToken, nextHash, err := security.GenerateRefreshToken(refreshTokenBytes)
	if err != nil {
		return AuthResult{}, err
	}
	expiresAt := time.Now().UTC().Add(s.cfg.Security.JWTRefreshTTL)
	if err := s.sessions.Rotate(ctx, session.ID, nextHash, expiresAt); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return AuthResult{}, ErrSessionInvalid
		}
		return AuthResult{}, fmt.Errorf("rotate session: %w", err)
	}

	accessToken, err := s.issueAccessToken(user, session)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: nextToken,
		User:         user,
		DeviceID:     session.DeviceID,
		SessionID:    session.ID,
	}, nil
}

type Principal struct {
	User   models.User
	Claims security.AccessClaims
}

// Authenticate resolves a bearer token into the user and its live session.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := security.ParseAccessToken(accessToken, s.cfg.Security.JWTAccessSecret)
	if err != nil {
		return Principal{}, err
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return Principal{}, ErrSessionInvalid
	}
	if session.UserID != claims.UserID || session.DeviceID != claims.DeviceID {
		return Principal{}, ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return Principal{}, ErrSessionInvalid
	}
	if user.Status != models.UserStatusActive {
		return Principal{}, ErrUserSuspended
	}

	return Principal{User: user, Claims: *claims}, nil
}

// Touch records activity on a session; failures are only logged.
func (s *AuthService) Touch(ctx context.Context, sessionID, ip, userAgent string) {
	if err := s.sessions.Touch(ctx, sessionID, ip, userAgent); err != nil {
		s.log.Debug().Err(err).Str("session_id", sessionID).Msg("touch session failed")
	}
}

type LogoutInput struct {
	SessionID    string
	RefreshToken string
}

// Logout ends the session named by the bearer claims or, failing that, the
// one owning the refresh token. Unknown sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	sessionID := input.SessionID
	if sessionID == "" && input.RefreshToken != "" {
		session, err := s.sessions.FindByRefreshHash(ctx, security.HashRefreshToken(input.RefreshToken))
		switch {
		case err == nil:
			sessionID = session.ID
		case errors.Is(err, repository.ErrSessionNotFound):
			return nil
		default:
			return err
		}
	}
	if sessionID == "" {
		return nil
	}

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	return nil
}

func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

func (s *AuthService) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	return s.sessions.DeleteByDevice(ctx, userID, deviceID)
}
