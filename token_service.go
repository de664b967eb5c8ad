package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenPair is the result of issuing or rotating tokens.
type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService issues, rotates and revokes HS256 token pairs.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   []string
	accessTTL  time.Duration
	refreshTTL time.Duration
	users      Users
	blacklist  Blacklist
	now        func() time.Time
	logger     Logger
}

type TokenServiceOption func(*TokenService)

// WithTokenClock injects the clock used to stamp and validate tokens.
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a TokenService from cfg. Zero TTLs fall back to
// the package defaults.
func NewTokenService(cfg Config, users Users, blacklist Blacklist, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey: []byte(cfg.GetSigningKey()),
		issuer:     cfg.GetIssuer(),
		audience:   cfg.GetAudience(),
		accessTTL:  cfg.GetAccessTokenTTL(),
		refreshTTL: cfg.GetRefreshTokenTTL(),
		users:      users,
		blacklist:  blacklist,
		now:        time.Now,
		logger:     defLogger(),
	}

	if ts.accessTTL <= 0 {
		ts.accessTTL = DefaultAccessTokenTTL
	}
	if ts.refreshTTL <= 0 {
		ts.refreshTTL = DefaultRefreshTokenTTL
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

func (ts *TokenService) AccessTTL() time.Duration  { return ts.accessTTL }
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

// Issue signs a fresh access and refresh token for user.
func (ts *TokenService) Issue(_ context.Context, user *User) (TokenPair, error) {
	if user == nil {
		return TokenPair{}, goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	now := ts.now()

	access := newTokenClaims(user, TokenTypeAccess, ts.issuer, ts.audience, now, ts.accessTTL)
	refresh := newTokenClaims(user, TokenTypeRefresh, ts.issuer, ts.audience, now, ts.refreshTTL)

	accessToken, err := ts.sign(access)
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := ts.sign(refresh)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		Access:           accessToken,
		Refresh:          refreshToken,
		AccessExpiresAt:  access.Expires(),
		RefreshExpiresAt: refresh.Expires(),
	}, nil
}

// Refresh validates raw as a refresh token, claims its jti in the
// blacklist and issues a new pair. Of several concurrent calls with the
// same token exactly one succeeds, the rest get ErrRevoked.
func (ts *TokenService) Refresh(ctx context.Context, raw string) (TokenPair, *User, error) {
	claims, err := ts.ValidateRefresh(raw)
	if err != nil {
		return TokenPair{}, nil, err
	}

	// the jti is claimed before the user lookup so a replay reports
	// ErrRevoked whatever state the account is in now
	if err := ts.blacklist.Add(ctx, ts.blacklistEntry(claims)); err != nil {
		if errors.Is(err, ErrRevoked) {
			ts.logger.Debug("refresh token reuse", "jti", claims.ID, "sub", claims.Subject)
		}
		return TokenPair{}, nil, err
	}

	user, err := ts.subject(ctx, claims)
	if err != nil {
		return TokenPair{}, nil, err
	}

	pair, err := ts.Issue(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}

	return pair, user, nil
}

// Revoke blacklists a refresh token. Malformed, expired or already
// revoked tokens are accepted silently; only store failures surface.
func (ts *TokenService) Revoke(ctx context.Context, raw string) error {
	claims, err := ts.ValidateRefresh(raw)
	if err != nil {
		ts.logger.Debug("revoke skipped unusable token", "error", err)
		return nil
	}

	if err := ts.blacklist.Add(ctx, ts.blacklistEntry(claims)); err != nil {
		if errors.Is(err, ErrRevoked) {
			return nil
		}
		return err
	}
	return nil
}

// ValidateAccess checks signature, expiry, issuer, audience and type.
func (ts *TokenService) ValidateAccess(raw string) (*TokenClaims, error) {
	return ts.parse(raw, TokenTypeAccess)
}

// ValidateRefresh is ValidateAccess for refresh tokens. It does not
// consult the blacklist.
func (ts *TokenService) ValidateRefresh(raw string) (*TokenClaims, error) {
	return ts.parse(raw, TokenTypeRefresh)
}

// IsRevoked reports whether the refresh token id was blacklisted
func (ts *TokenService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return ts.blacklist.Contains(ctx, jti)
}

// PurgeExpired deletes blacklist entries for tokens that already expired.
func (ts *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return ts.blacklist.Purge(ctx, ts.now())
}

func (ts *TokenService) sign(claims *TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

func (ts *TokenService) parse(raw string, expected TokenType) (*TokenClaims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, deriveError(ErrTokenExpired, err)
		}
		return nil, deriveError(ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != expected {
		return nil, deriveError(ErrInvalidToken, nil, map[string]any{
			"expected": expected,
			"got":      claims.TokenType,
		})
	}

	return claims, nil
}

// subject resolves the user behind claims, who must still be active.
func (ts *TokenService) subject(ctx context.Context, claims *TokenClaims) (*User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, deriveError(ErrInvalidToken, err)
	}

	user, err := ts.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, deriveError(ErrInvalidToken, err)
		}
		return nil, err
	}

	if !user.IsActive() {
		return nil, deriveError(ErrInvalidToken, nil, map[string]any{
			"user_id": user.ID.String(),
			"status":  user.Status,
		})
	}

	return user, nil
}

func (ts *TokenService) blacklistEntry(claims *TokenClaims) BlacklistEntry {
	id, _ := claims.UserID()
	return BlacklistEntry{
		JTI:       claims.ID,
		UserID:    id,
		ExpiresAt: claims.Expires(),
		RevokedAt: ts.now(),
	}
}
