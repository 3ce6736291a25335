package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"group-chat/internal/domain"
)

// AuthService emite y valida tokens JWT.
type AuthService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Claims struct {
	UserID    string `json:"uid"`
	Name      string `json:"name,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrTokenInvalid = fmt.Errorf("%w: invalid token", domain.ErrNotAuthenticated)
	ErrTokenExpired = fmt.Errorf("%w: token expired", domain.ErrNotAuthenticated)
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

func NewAuthService(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *AuthService {
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &AuthService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "group-chat",
		store:      store,
	}
}

// Issue firma un access token y un refresh token rotable para el usuario.
func (s *AuthService) Issue(userID, name string) (TokenPair, error) {
	if s == nil || len(s.secret) == 0 {
		return TokenPair{}, ErrTokenInvalid
	}
	if strings.TrimSpace(userID) == "" {
		return TokenPair{}, ErrTokenInvalid
	}
	now := time.Now().UTC()
	access, err := s.sign(Claims{UserID: userID, Name: name, TokenType: tokenAccess}, now, s.accessTTL, "")
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.sign(Claims{UserID: userID, Name: name, TokenType: tokenRefresh}, now, s.refreshTTL, jti)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Store(jti, userID, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// Verify valida un access token y devuelve el id del usuario.
func (s *AuthService) Verify(accessToken string) (string, error) {
	claims, err := s.ParseAccessToken(accessToken)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (s *AuthService) ParseAccessToken(accessToken string) (Claims, error) {
	if s == nil || len(s.secret) == 0 {
		return Claims{}, ErrTokenInvalid
	}
	claims, err := s.parse(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenAccess {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

// Refresh consume el refresh token (un solo uso) y emite un par nuevo.
func (s *AuthService) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := s.refreshClaims(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	owner, err := s.store.Consume(claims.ID)
	if errors.Is(err, ErrRefreshTokenUnknown) {
		return TokenPair{}, ErrTokenInvalid
	}
	if err != nil {
		return TokenPair{}, err
	}
	if owner != claims.UserID {
		return TokenPair{}, ErrTokenInvalid
	}
	return s.Issue(claims.UserID, claims.Name)
}

func (s *AuthService) Revoke(refreshToken string) error {
	claims, err := s.refreshClaims(refreshToken)
	if err != nil {
		return err
	}
	return s.store.Revoke(claims.ID)
}

func (s *AuthService) refreshClaims(token string) (Claims, error) {
	if s == nil || len(s.secret) == 0 {
		return Claims{}, ErrTokenInvalid
	}
	claims, err := s.parse(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenRefresh || claims.ID == "" {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *AuthService) sign(claims Claims, now time.Time, ttl time.Duration, jti string) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *AuthService) parse(tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.Subject != claims.UserID {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}
