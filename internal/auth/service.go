package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/frahmantamala/crm-backend/internal"
	userDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/user"
	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/internal/mailer"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/google/uuid"
)

// UserStore is the slice of the user repository sign-in needs. Lookups return
// (nil, nil) when nothing matches.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*userDatamodel.User, error)
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User) error
	Save(ctx context.Context, u *userDatamodel.User) error
}

type Hasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}

type AvatarRecorder interface {
	RecordAvatar(ctx context.Context, u *user.User, url string) error
}

const (
	MethodPassword = "password"
	MethodOTP      = "otp"
	MethodGoogle   = "google"
)

type Service struct {
	users     UserStore
	tokens    TokenGenerator
	hasher    Hasher
	publisher events.Publisher
	logger    *slog.Logger

	codes  CodeStore
	mail   mailer.Sender
	otpCfg OTPSettings

	identity IdentityProvider
	states   StateStore
	avatars  AvatarRecorder
	stateTTL time.Duration
}

func NewService(users UserStore, tokens TokenGenerator, hasher Hasher, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		publisher: publisher,
		logger:    logger,
		otpCfg:    OTPSettings{}.withDefaults(),
	}
}

// WithOTP enables email one-time codes.
func (s *Service) WithOTP(codes CodeStore, mail mailer.Sender, cfg OTPSettings) *Service {
	s.codes = codes
	s.mail = mail
	s.otpCfg = cfg.withDefaults()
	return s
}

// WithGoogle enables Google sign-in.
func (s *Service) WithGoogle(identity IdentityProvider, states StateStore, avatars AvatarRecorder, stateTTL time.Duration) *Service {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	s.identity = identity
	s.states = states
	s.avatars = avatars
	s.stateTTL = stateTTL
	return s
}

func (s *Service) Login(ctx context.Context, dto LoginDTO) (*LoginResponse, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	row, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load user", err)
	}
	if row == nil || !s.hasher.Verify(row.PasswordHash, dto.Password) {
		s.logger.InfoContext(ctx, "password login rejected", "email", dto.Email)
		return nil, apperrors.ErrInvalidCredentials
	}
	return s.issue(ctx, user.FromDataModel(row), MethodPassword)
}

// Refresh trades a refresh token for a new pair. The account must still be active.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	if err := (RefreshTokenDTO{RefreshToken: refreshToken}).Validate(); err != nil {
		return nil, err
	}
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.loadClaimed(ctx, claims)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, u, "")
}

// Logout checks the token. Tokens are stateless, the client discards them.
func (s *Service) Logout(_ context.Context, accessToken string) error {
	_, err := s.tokens.ValidateAccessToken(accessToken)
	return err
}

// Authenticate resolves an access token to the active user it was issued for.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*user.User, error) {
	if accessToken == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	return s.loadClaimed(ctx, claims)
}

// RequestOTP mails a fresh code. Unknown or inactive addresses get the same
// answer as known ones and no mail.
func (s *Service) RequestOTP(ctx context.Context, dto RequestOTPDTO) (time.Duration, error) {
	if s.codes == nil || s.mail == nil {
		return 0, apperrors.NewValidationError("One-time codes are not enabled", apperrors.ErrCodeInvalidRequest)
	}
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return 0, err
	}

	row, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to load user", err)
	}
	if row == nil || !row.IsActive {
		s.logger.InfoContext(ctx, "otp requested for unknown or inactive account", "email", dto.Email)
		return s.otpCfg.TTL, nil
	}

	code, err := generateCode(s.otpCfg.Length)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to generate code", err)
	}
	digest, err := s.hasher.Hash(code)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to hash code", err)
	}
	if err := s.codes.Save(ctx, dto.Email, OTPEntry{Digest: digest}, s.otpCfg.TTL); err != nil {
		return 0, apperrors.NewInternalError("failed to store code", err)
	}

	msg := mailer.Message{
		To:      dto.Email,
		Subject: "Your sign-in code",
		TextBody: fmt.Sprintf("Your sign-in code is %s. It expires in %d minutes.",
			code, int(s.otpCfg.TTL.Minutes())),
		Tag: "otp",
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver otp", "email", dto.Email, "error", err)
		if derr := s.codes.Delete(ctx, dto.Email); derr != nil {
			s.logger.WarnContext(ctx, "failed to discard undelivered otp", "email", dto.Email, "error", derr)
		}
		return 0, apperrors.NewExternalError("Failed to send the verification code", apperrors.ErrCodeEmailDeliveryFailed, err)
	}
	return s.otpCfg.TTL, nil
}

func (s *Service) VerifyOTP(ctx context.Context, dto VerifyOTPDTO) (*LoginResponse, error) {
	if s.codes == nil {
		return nil, apperrors.NewValidationError("One-time codes are not enabled", apperrors.ErrCodeInvalidRequest)
	}
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	entry, err := s.codes.Get(ctx, dto.Email)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load code", err)
	}
	if entry == nil {
		return nil, apperrors.ErrOTPExpired
	}
	if entry.Attempts >= s.otpCfg.MaxAttempts {
		s.discardCode(ctx, dto.Email)
		return nil, apperrors.ErrOTPTooManyAttempts
	}

	if !s.hasher.Verify(entry.Digest, dto.Code) {
		attempts, err := s.codes.IncrementAttempts(ctx, dto.Email)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to record attempt", err)
		}
		if attempts >= s.otpCfg.MaxAttempts {
			s.discardCode(ctx, dto.Email)
			return nil, apperrors.ErrOTPTooManyAttempts
		}
		return nil, apperrors.ErrOTPInvalid
	}
	s.discardCode(ctx, dto.Email)

	row, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, apperrors.ErrOTPInvalid
	}
	return s.issue(ctx, user.FromDataModel(row), MethodOTP)
}

// GoogleAuthURL starts a Google sign-in with a fresh one-time state.
func (s *Service) GoogleAuthURL(ctx context.Context) (string, error) {
	if s.identity == nil || s.states == nil {
		return "", apperrors.NewValidationError("Google sign-in is not enabled", apperrors.ErrCodeInvalidRequest)
	}
	state, err := generateState()
	if err != nil {
		return "", apperrors.NewInternalError("failed to generate state", err)
	}
	if err := s.states.Put(ctx, state, s.stateTTL); err != nil {
		return "", apperrors.NewInternalError("failed to store state", err)
	}
	return s.identity.AuthCodeURL(state), nil
}

// GoogleCallback finishes a Google sign-in. The account is found by Google id,
// then by email (and linked), and created as a Guest otherwise.
func (s *Service) GoogleCallback(ctx context.Context, code, state string) (*LoginResponse, error) {
	if s.identity == nil || s.states == nil {
		return nil, apperrors.NewValidationError("Google sign-in is not enabled", apperrors.ErrCodeInvalidRequest)
	}
	if code == "" || state == "" {
		return nil, apperrors.ErrOAuthStateInvalid
	}

	ok, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to check state", err)
	}
	if !ok {
		return nil, apperrors.ErrOAuthStateInvalid
	}

	profile, err := s.identity.Profile(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUnverifiedEmail) {
			return nil, apperrors.NewUnauthenticatedError("Google account email is not verified", apperrors.ErrCodeOAuthExchange)
		}
		s.logger.WarnContext(ctx, "google profile fetch failed", "error", err)
		return nil, apperrors.NewExternalError("Google sign-in failed", apperrors.ErrCodeOAuthExchange, err)
	}

	u, err := s.findOrLinkGoogleUser(ctx, profile)
	if err != nil {
		return nil, err
	}

	if profile.AvatarURL != "" && s.avatars != nil {
		if err := s.avatars.RecordAvatar(ctx, u, profile.AvatarURL); err != nil {
			s.logger.WarnContext(ctx, "failed to record provider avatar", "user_id", u.ID, "error", err)
		}
	}
	return s.issue(ctx, u, MethodGoogle)
}

func (s *Service) findOrLinkGoogleUser(ctx context.Context, profile *Profile) (*user.User, error) {
	row, err := s.users.GetByGoogleID(ctx, profile.ProviderID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load user", err)
	}
	if row != nil {
		return user.FromDataModel(row), nil
	}

	email := strings.ToLower(strings.TrimSpace(profile.Email))
	row, err = s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load user", err)
	}
	if row != nil {
		googleID := profile.ProviderID
		row.GoogleID = &googleID
		if err := s.users.Save(ctx, row); err != nil {
			return nil, apperrors.NewInternalError("failed to link google account", err)
		}
		s.logger.InfoContext(ctx, "google account linked", "user_id", row.ID)
		return user.FromDataModel(row), nil
	}

	name := strings.TrimSpace(profile.DisplayName)
	if name == "" {
		name = email
	}
	googleID := profile.ProviderID
	u := &user.User{
		ID:         uuid.New(),
		Email:      email,
		Name:       name,
		GoogleID:   &googleID,
		SystemRole: permission.RoleGuest,
		IsActive:   true,
	}
	row = user.ToDataModel(u)
	if err := s.users.Create(ctx, row); err != nil {
		return nil, apperrors.NewInternalError("failed to create user", err)
	}
	created := user.FromDataModel(row)
	s.publish(ctx, events.EventTypeUserCreated, created.ID, created.ID, map[string]interface{}{
		"source":      MethodGoogle,
		"system_role": string(created.SystemRole),
	})
	return created, nil
}

func (s *Service) loadClaimed(ctx context.Context, claims *Claims) (*user.User, error) {
	id, err := claims.UserUUID()
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}
	row, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, apperrors.ErrInvalidToken
	}
	u := user.FromDataModel(row)
	if !u.IsActive {
		return nil, apperrors.ErrUserInactive
	}
	return u, nil
}

func (s *Service) issue(ctx context.Context, u *user.User, method string) (*LoginResponse, error) {
	if !u.IsActive {
		return nil, apperrors.ErrUserInactive
	}

	access, err := s.tokens.GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to issue token", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(u.ID, u.Email)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to issue token", err)
	}

	if method != "" {
		s.publish(ctx, events.EventTypeUserLoggedIn, u.ID, u.ID, map[string]interface{}{"method": method})
	}
	return &LoginResponse{
		AuthTokens: AuthTokens{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		},
		User: u,
	}, nil
}

func (s *Service) discardCode(ctx context.Context, email string) {
	if err := s.codes.Delete(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to delete otp", "email", email, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, actorID, subjectID uuid.UUID, data map[string]interface{}) {
	if err := s.publisher.Publish(ctx, events.NewDomainEvent(eventType, actorID, subjectID, data)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", eventType, "error", err)
	}
}
