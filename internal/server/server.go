package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"fitpass/internal/config"
	"fitpass/internal/database"
	"fitpass/internal/middlewares"
	"fitpass/internal/models"
	"fitpass/internal/ratelimit"
	"fitpass/internal/repositories"
	"fitpass/internal/services"
	"fitpass/internal/utils"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg        *config.Config
	httpServer *http.Server

	db         database.Service
	store      sessions.Store
	ipLimiter  *ratelimit.Keyed
	dispatcher *services.AsyncDispatcher
	scheduler  *services.SchedulerService
	auth       *middlewares.Authenticator

	userService  services.UserService
	authService  services.AuthService
	resetService services.PasswordResetService
}

// Stores bundles the repositories the server runs on.
type Stores struct {
	DB     database.Service
	Users  repositories.UserRepository
	Resets repositories.ResetRequestRepository
}

// OpenStores connects the configured storage backend.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn().Msg("Using in-memory storage; data is lost on restart and not shared between instances")
		return &Stores{
			Users:  repositories.NewMemoryUserRepository(),
			Resets: repositories.NewMemoryResetRequestRepository(),
		}, nil
	}

	db, err := database.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	users, err := repositories.NewUserRepository(ctx, db.Database())
	if err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	resets, err := repositories.NewResetRequestRepository(ctx, db.Database())
	if err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	return &Stores{DB: db, Users: users, Resets: resets}, nil
}

// ResetConfigFrom maps environment configuration onto the reset flow settings.
func ResetConfigFrom(cfg *config.Config) services.ResetConfig {
	return services.ResetConfig{
		CodeTTL:           cfg.ResetCodeTTL,
		TokenTTL:          cfg.ResetTokenTTL,
		MaxAttempts:       cfg.ResetMaxAttempts,
		MinPasswordLength: cfg.PasswordMinLength,
		Retention:         cfg.ResetRetention,
		ConcealUnknown:    cfg.ResetConcealUnknown,
	}
}

// secretOrEphemeral returns value, or a random secret outside production so a
// local run works without configuring one.
func secretOrEphemeral(name, value string) ([]byte, error) {
	if value != "" {
		return []byte(value), nil
	}
	generated, err := utils.GenerateResetToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", name, err)
	}
	log.Warn().Str("setting", name).Msg("Not configured, using an ephemeral value")
	return []byte(generated), nil
}

func NewServer(ctx context.Context, cfg *config.Config, stores *Stores) (*Server, error) {
	jwtSecret, err := secretOrEphemeral("JWT_SECRET", cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	sessionKey, err := secretOrEphemeral("SESSION_KEY", cfg.SessionKey)
	if err != nil {
		return nil, err
	}
	sessionCfg := *cfg
	sessionCfg.SessionKey = string(sessionKey)
	store := services.NewCookieStore(&sessionCfg)
	services.InitializeGoth(cfg, store)

	tokens := services.TokenConfig{Secret: jwtSecret, TTL: cfg.JWTTTL}
	hasher := utils.NewHasher(cfg.BcryptCost)

	senders := map[models.Channel]services.Sender{
		models.ChannelEmail: services.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom),
		models.ChannelPhone: services.NewSMSSender(cfg.SMSAPIKey, cfg.SMSBaseURL, cfg.SMSSender),
	}
	dispatcher := services.NewAsyncDispatcher(senders, cfg.NotifyWorkers, cfg.NotifyQueueSize)

	cooldown := ratelimit.NewCooldown(cfg.ResetCooldown)
	ipLimiter := ratelimit.New(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	s := &Server{
		cfg:          cfg,
		db:           stores.DB,
		store:        store,
		ipLimiter:    ipLimiter,
		dispatcher:   dispatcher,
		scheduler:    services.NewSchedulerService(),
		auth:         middlewares.NewAuthenticator(jwtSecret, stores.Users),
		userService:  services.NewUserService(stores.Users, hasher, tokens, cfg.PasswordMinLength),
		authService:  services.NewAuthService(stores.Users, tokens),
		resetService: services.NewPasswordResetService(stores.Users, stores.Resets, dispatcher, hasher, cooldown, ResetConfigFrom(cfg)),
	}

	// Buckets must outlive the longest refill period before they are swept.
	idle := 10 * time.Minute
	if 2*cfg.ResetCooldown > idle {
		idle = 2 * cfg.ResetCooldown
	}
	for _, task := range services.MaintenanceTasks(s.resetService, s.userService, cfg.CleanupInterval, idle, cooldown, ipLimiter) {
		if err := s.scheduler.Register(task); err != nil {
			return nil, err
		}
	}
	s.userService.RefreshTotalUsers(ctx)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

func (s *Server) Start() error {
	s.scheduler.Start()
	log.Info().Int("port", s.cfg.Port).Str("store", s.cfg.StoreDriver).Msg("Starting server")
	return s.httpServer.ListenAndServe()
}

// GracefulShutdown waits for SIGINT or SIGTERM, then stops accepting
// requests, stops the scheduler and drains queued notifications.
func (s *Server) GracefulShutdown(done chan<- struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info().Msg("Shutting down gracefully, press Ctrl+C again to force")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Shutdown(shutdownCtx)

	log.Info().Msg("Server exiting")
	close(done)
}

func (s *Server) Shutdown(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server forced to shutdown with error")
	}
	s.scheduler.Stop()
	if err := s.dispatcher.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Notification dispatcher did not drain")
	}
	if s.db != nil {
		if err := s.db.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to disconnect from MongoDB")
		}
	}
}
