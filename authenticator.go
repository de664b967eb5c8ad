package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Auther coordinates the user store, credential checks and token issuance.
// It knows nothing about HTTP.
type Auther struct {
	users        Users
	provider     *UserProvider
	tokens       *TokenService
	hasher       PasswordHasher
	policy       *PasswordPolicy
	phoneRegion  string
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(users Users, tokens *TokenService, hasher PasswordHasher, cfg Config) *Auther {
	return &Auther{
		users:        users,
		provider:     NewUserProvider(users, hasher),
		tokens:       tokens,
		hasher:       hasher,
		policy:       NewPasswordPolicy(),
		phoneRegion:  cfg.GetPhoneRegion(),
		activitySink: noopActivitySink{},
		logger:       defLogger(),
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	s.provider.WithLogger(s.logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithPasswordPolicy(policy *PasswordPolicy) *Auther {
	if policy != nil {
		s.policy = policy
	}
	return s
}

func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TokenService returns the TokenService used by this Auther
func (s *Auther) TokenService() *TokenService {
	return s.tokens
}

func (s *Auther) Users() Users {
	return s.users
}

// UserOptions flags applied on account creation
type UserOptions struct {
	IsStaff     bool
	IsSuperuser bool
}

// CreateUser validates req and stores a new active user.
func (s *Auther) CreateUser(ctx context.Context, req RegisterRequest, opts UserOptions) (*User, error) {
	req.Email = NormalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := req.Validate(s.policy, s.phoneRegion); err != nil {
		return nil, ValidationErrorFromOzzo(err)
	}

	phone, err := NormalizePhone(req.Phone, s.phoneRegion)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        phone,
		PasswordHash: hash,
		Status:       UserStatusActive,
		IsStaff:      opts.IsStaff,
		IsSuperuser:  opts.IsSuperuser,
	}

	return s.users.Create(ctx, user)
}

// CreateSuperuser creates an active staff superuser.
func (s *Auther) CreateSuperuser(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.CreateUser(ctx, req, UserOptions{IsStaff: true, IsSuperuser: true})
}

// Register creates the account and issues its first token pair.
func (s *Auther) Register(ctx context.Context, req RegisterRequest) (*User, TokenPair, error) {
	user, err := s.CreateUser(ctx, req, UserOptions{})
	if err != nil {
		return nil, TokenPair{}, err
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	s.emit(ctx, ActivityEventRegister, user, nil)
	return user, pair, nil
}

// Login verifies credentials and issues a token pair.
func (s *Auther) Login(ctx context.Context, req LoginRequest) (*User, TokenPair, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		return nil, TokenPair{}, ValidationErrorFromOzzo(err)
	}

	user, err := s.provider.Verify(ctx, req.Email, req.Password)
	if err != nil {
		s.logger.Info("login failed", "email", req.Email, "error", err)
		s.emit(ctx, ActivityEventLoginFailure, nil, map[string]any{
			"email":  req.Email,
			"reason": errorTextCode(err),
		})
		return nil, TokenPair{}, err
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	s.emit(ctx, ActivityEventLoginSuccess, user, nil)
	return user, pair, nil
}

// Refresh rotates a refresh token.
func (s *Auther) Refresh(ctx context.Context, raw string) (TokenPair, *User, error) {
	if raw == "" {
		return TokenPair{}, nil, ErrMissingToken
	}

	pair, user, err := s.tokens.Refresh(ctx, raw)
	if err != nil {
		s.logger.Info("token refresh failed", "error", err)
		s.emit(ctx, ActivityEventTokenRefreshFailure, nil, map[string]any{
			"reason": errorTextCode(err),
		})
		return TokenPair{}, nil, err
	}

	s.emit(ctx, ActivityEventTokenRefresh, user, nil)
	return pair, user, nil
}

// Logout revokes raw if it is a usable refresh token. Store failures are
// logged and swallowed.
func (s *Auther) Logout(ctx context.Context, raw string) {
	var uid string
	if raw != "" {
		if claims, err := s.tokens.ValidateRefresh(raw); err == nil {
			uid = claims.Subject
		}
		if err := s.tokens.Revoke(ctx, raw); err != nil {
			s.logger.Error("logout failed to revoke refresh token", "error", err)
		}
	}

	s.emitEvent(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     actorFromID(uid),
		UserID:    uid,
	})
}

// ChangePassword checks the old password and stores the new hash.
func (s *Auther) ChangePassword(ctx context.Context, user *User, req ChangePasswordRequest) error {
	verr := req.Validate(s.policy, PasswordSubject{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})

	if req.OldPassword != "" {
		if err := s.provider.CheckPassword(user, req.OldPassword); err != nil {
			return err
		}
	}

	if verr != nil {
		return ValidationErrorFromOzzo(verr)
	}

	hash, err := s.hasher.HashPassword(req.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	user.PasswordHash = hash

	s.emit(ctx, ActivityEventPasswordChanged, user, nil)
	return nil
}

// UpdateProfile applies a full or partial profile update.
func (s *Auther) UpdateProfile(ctx context.Context, user *User, req ProfileUpdateRequest, partial bool) (*User, error) {
	if err := req.Validate(partial, s.phoneRegion); err != nil {
		return nil, ValidationErrorFromOzzo(err)
	}

	next := *user
	if err := req.Apply(&next, s.phoneRegion); err != nil {
		return nil, err
	}

	updated, err := s.users.UpdateProfile(ctx, &next)
	if err != nil {
		return nil, err
	}
	*user = *updated
	return user, nil
}

// ResolveAccessToken validates an access token and loads its active user.
func (s *Auther) ResolveAccessToken(ctx context.Context, raw string) (*User, *TokenClaims, error) {
	claims, err := s.tokens.ValidateAccess(raw)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.ActiveUser(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// ActiveUser loads the user with the given id, which must be active.
func (s *Auther) ActiveUser(ctx context.Context, rawID string) (*User, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, deriveError(ErrInvalidToken, err)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !user.IsActive() {
		return nil, deriveError(ErrUnauthenticated, nil, map[string]any{
			"user_id": user.ID.String(),
			"status":  user.Status,
		})
	}
	return user, nil
}

// RecordSessionBridged emits the bridge event for user.
func (s *Auther) RecordSessionBridged(ctx context.Context, user *User) {
	s.emit(ctx, ActivityEventSessionBridged, user, nil)
}

func (s *Auther) emit(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Metadata:  metadata,
		Actor:     ActorRef{Type: "anonymous"},
	}
	if user != nil {
		event.UserID = user.ID.String()
		event.Actor = actorFromID(event.UserID)
	}
	s.emitEvent(ctx, event)
}

func (s *Auther) emitEvent(ctx context.Context, event ActivityEvent) {
	event.OccurredAt = s.now().UTC()
	emitActivity(ctx, s.activitySink, s.logger, event)
}

func actorFromID(id string) ActorRef {
	if id == "" {
		return ActorRef{Type: "anonymous"}
	}
	return ActorRef{ID: id, Type: "user"}
}

func errorTextCode(err error) string {
	var rich *goerrors.Error
	if errors.As(err, &rich) && rich.TextCode != "" {
		return rich.TextCode
	}
	return TextCodeInternal
}
