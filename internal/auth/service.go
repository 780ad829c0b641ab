package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/recovery-match/internal/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidCreds = errors.New("invalid credentials")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownUser  = errors.New("unknown user")
)

const tokenTTL = 24 * time.Hour

type Service struct {
	db     *pgxpool.Pool
	secret []byte
	logger *zap.Logger
}

// NewService builds the auth service. Without a configured secret an
// ephemeral one is generated, so tokens do not survive a restart.
func NewService(db *pgxpool.Pool, secret string, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	key, err := resolveSecret(secret)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(secret) == "" {
		logger.Warn("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	}
	return &Service{db: db, secret: key, logger: logger.Named("auth")}, nil
}

func resolveSecret(secret string) ([]byte, error) {
	if s := strings.TrimSpace(secret); s != "" {
		return []byte(s), nil
	}
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate JWT fallback secret: %w", err)
	}
	return []byte(base64.RawURLEncoding.EncodeToString(buf)), nil
}

func validateCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if len(password) < 8 {
		return "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	return email, nil
}

// Signup registers an applicant. Every applicant owns exactly one survivor
// profile, created empty here.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	email, err := validateCredentials(req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var survivorID uuid.UUID
	if err := tx.QueryRow(ctx, "INSERT INTO survivor_profiles DEFAULT VALUES RETURNING survivor_id").Scan(&survivorID); err != nil {
		return nil, fmt.Errorf("create profile failed: %w", err)
	}

	user := User{Role: models.RoleUser, SurvivorID: &survivorID}
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, survivor_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, created_at
	`, email, string(hash), string(models.RoleUser), survivorID).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	token, err := s.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID.String()))
	return &AuthResponse{Token: token, User: user}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var user User
	var role string
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, role, survivor_id, created_at
		FROM users WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(req.Email))).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &role, &user.SurvivorID, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}
	user.PasswordHash = ""
	user.Role = models.Role(role)

	token, err := s.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: user}, nil
}

// ResolveActor looks up the role and owned survivor profile of a user. The
// database is authoritative; the role claim in the token is informational.
func (s *Service) ResolveActor(ctx context.Context, userID uuid.UUID) (models.Actor, error) {
	actor := models.Actor{UserID: userID}
	var role string
	err := s.db.QueryRow(ctx, "SELECT role, survivor_id FROM users WHERE id = $1", userID).Scan(&role, &actor.SurvivorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return actor, ErrUnknownUser
	}
	if err != nil {
		return actor, err
	}
	actor.Role, err = models.ParseRole(role)
	return actor, err
}

// SetRole changes the role of the user with the given email.
func (s *Service) SetRole(ctx context.Context, email string, role models.Role) error {
	tag, err := s.db.Exec(ctx, "UPDATE users SET role = $2 WHERE email = $1", strings.ToLower(strings.TrimSpace(email)), string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownUser
	}
	return nil
}

func (s *Service) GenerateToken(userID uuid.UUID, role models.Role) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates a signed token and returns its subject.
func (s *Service) ParseToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token subject")
	}
	return uuid.Parse(sub)
}
