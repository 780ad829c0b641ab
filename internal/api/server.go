package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/auth"
	"github.com/david/recovery-match/internal/db"
	"github.com/david/recovery-match/internal/matching"
	"github.com/david/recovery-match/internal/models"
)

// Store is the storage the handlers read from directly. Writes to matches go
// through matching.Service.
type Store interface {
	ListOpportunities(ctx context.Context, params db.ListParams) (*db.ListResult, error)
	GetOpportunity(ctx context.Context, id uuid.UUID) (models.FundingOpportunity, error)
	CreateOpportunity(ctx context.Context, o *models.FundingOpportunity) error
	UpdateCriteria(ctx context.Context, id uuid.UUID, criteria []models.Criterion) (models.FundingOpportunity, error)
	GetProfile(ctx context.Context, survivorID uuid.UUID) (models.ApplicantProfile, error)
	PutProfile(ctx context.Context, p models.ApplicantProfile) (models.ApplicantProfile, error)
	GetMatch(ctx context.Context, opportunityID, survivorID uuid.UUID) (models.OpportunityMatch, error)
	ListMatchesByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]models.OpportunityMatch, error)
	ListMatchesBySurvivor(ctx context.Context, survivorID uuid.UUID) ([]models.OpportunityMatch, error)
}

type Options struct {
	CORSOrigins []string
	AdminSecret string
	JobTimeout  time.Duration

	// Directory resolves token users into actors. Defaults to the auth service.
	Directory auth.Directory
}

type Server struct {
	Store       Store
	Matches     *matching.Service
	AuthService *auth.Service
	Directory   auth.Directory
	Echo        *echo.Echo
	Logger      *zap.Logger

	adminSecret string
	jobTimeout  time.Duration

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

// systemActor is used for requests authenticated with the admin secret.
var systemActor = models.Actor{UserID: uuid.Nil, Role: models.RoleSuperAdmin}

func NewServer(store Store, matches *matching.Service, authService *auth.Service, logger *zap.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	secret := strings.TrimSpace(opts.AdminSecret)
	if secret == "" {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(buf)
		logger.Warn("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:4200"}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Store:       store,
		Matches:     matches,
		AuthService: authService,
		Echo:        e,
		Logger:      logger.Named("api"),
		adminSecret: secret,
		jobTimeout:  opts.JobTimeout,
	}
	s.Directory = opts.Directory
	if s.Directory == nil && authService != nil {
		s.Directory = authService
	}

	s.routes()
	return s, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	// Auth Routes
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	authed := api.Group("", s.authenticate)
	adminOnly := auth.RequireRole(models.RoleAdmin, models.RoleSuperAdmin)

	authed.GET("/opportunities", s.handleListOpportunities)
	authed.GET("/opportunities/:id", s.handleGetOpportunity)
	authed.POST("/opportunities", s.handleCreateOpportunity, adminOnly)
	authed.PUT("/opportunities/:id/criteria", s.handleUpdateCriteria, adminOnly)

	authed.GET("/survivors/:id/profile", s.handleGetProfile)
	authed.PUT("/survivors/:id/profile", s.handlePutProfile)
	authed.POST("/survivors/:id/matches/evaluate", s.handleEvaluateSurvivor)
	authed.GET("/survivors/:id/matches", s.handleListSurvivorMatches)

	authed.GET("/opportunities/:id/matches", s.handleListOpportunityMatches)
	authed.GET("/opportunities/:id/matches/:survivorId", s.handleGetMatch)
	authed.POST("/opportunities/:id/matches/:survivorId/transitions", s.handleTransition)
	authed.PATCH("/opportunities/:id/matches/:survivorId/notes", s.handleUpdateNotes)

	authed.POST("/admin/rescore", s.handleRescore, adminOnly)
	authed.GET("/admin/job/:id", s.handleJobStatus, adminOnly)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// authenticate accepts either the admin secret (acting as super_admin) or
// a user bearer token resolved through the directory.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	withUser := s.userAuth(next)

	return func(c echo.Context) error {
		if s.isAdminSecret(c.Request()) {
			c.Set(string(auth.ActorKey), systemActor)
			return next(c)
		}
		return withUser(c)
	}
}

func (s *Server) userAuth(next echo.HandlerFunc) echo.HandlerFunc {
	if s.AuthService == nil || s.Directory == nil {
		return func(echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Token authentication unavailable")
		}
	}
	return s.AuthService.Middleware(auth.LoadActor(s.Directory)(next))
}

func (s *Server) isAdminSecret(r *http.Request) bool {
	candidate := r.Header.Get("X-Admin-Secret")
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.adminSecret)) == 1
}

func actorOf(c echo.Context) models.Actor {
	actor, _ := auth.ActorFromContext(c)
	return actor
}

// canAccessSurvivor reports whether the actor may read or edit data of the
// given survivor.
func canAccessSurvivor(actor models.Actor, survivorID uuid.UUID) bool {
	return actor.IsStaff() || actor.Owns(survivorID)
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}
