package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/ardaongl/hsdarena-backend/internal/app"
	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

const (
	roleTeam  = "team"
	roleAdmin = "admin"
)

// Config holds the signing material for the two token audiences.
type Config struct {
	TeamSecret  string
	AdminSecret string
	TeamTTL     time.Duration
	AdminTTL    time.Duration
}

// TeamClaims is the authenticated team identity carried by a team token.
// The session engine trusts it verbatim and never re-derives it.
type TeamClaims struct {
	TeamID    string `json:"teamId"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// AdminClaims identifies an organizer.
type AdminClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 session credentials.
type Service struct {
	users app.UserStore
	cfg   Config
	clock clockwork.Clock
}

func NewService(users app.UserStore, cfg Config, clock clockwork.Clock) *Service {
	if cfg.TeamTTL <= 0 {
		cfg.TeamTTL = time.Hour
	}
	if cfg.AdminTTL <= 0 {
		cfg.AdminTTL = 15 * time.Minute
	}
	return &Service{users: users, cfg: cfg, clock: clock}
}

// Login verifies organizer credentials and issues an admin token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, ok, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		return "", domain.Internalf(err, "load user")
	}
	if !ok {
		return "", domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", domain.ErrInvalidCredentials
	}

	now := s.clock.Now()
	claims := AdminClaims{
		Email: user.Email,
		Role:  roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AdminTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.AdminSecret))
}

// SignTeamToken issues the credential a team presents on its realtime
// connection after joining a session.
func (s *Service) SignTeamToken(teamID, sessionID string) (string, error) {
	now := s.clock.Now()
	claims := TeamClaims{
		TeamID:    teamID,
		SessionID: sessionID,
		Role:      roleTeam,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "team:" + teamID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TeamTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.TeamSecret))
}

// VerifyTeamToken parses and validates a team token.
func (s *Service) VerifyTeamToken(token string) (TeamClaims, error) {
	var claims TeamClaims
	if err := s.verify(token, &claims, s.cfg.TeamSecret); err != nil {
		return TeamClaims{}, err
	}
	if claims.Role != roleTeam || claims.TeamID == "" || claims.SessionID == "" {
		return TeamClaims{}, domain.Forbiddenf("invalid team token")
	}
	return claims, nil
}

// VerifyAdminToken parses and validates an organizer token.
func (s *Service) VerifyAdminToken(token string) (AdminClaims, error) {
	var claims AdminClaims
	if err := s.verify(token, &claims, s.cfg.AdminSecret); err != nil {
		return AdminClaims{}, err
	}
	if claims.Role != roleAdmin {
		return AdminClaims{}, domain.Forbiddenf("invalid admin token")
	}
	return claims, nil
}

func (s *Service) verify(token string, claims jwt.Claims, secret string) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return domain.Forbiddenf("invalid or expired token")
	}
	return nil
}
