package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fitpass/internal/handlers"
	"fitpass/internal/middlewares"
	"fitpass/internal/models"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	r.Use(middlewares.Instrument)
	r.Use(middlewares.CorsMiddleware(s.cfg.AllowedOriginsList()))
	r.Use(middlewares.RateLimit(s.ipLimiter))

	ch := handlers.NewCommonHandler(s.db)
	r.HandleFunc("/health", ch.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.registerPasswordResetRoutes(r)
	s.registerAuthRoutes(r)
	s.registerAdminRoutes(r)

	return r
}

func (s *Server) registerPasswordResetRoutes(r *mux.Router) {
	ph := handlers.NewPasswordResetHandler(s.resetService, s.store)

	r.HandleFunc("/password/send-otp", ph.SendOTP).Methods("POST", "OPTIONS")
	r.HandleFunc("/password/otp-form", ph.OTPForm).Methods("GET", "OPTIONS")
	r.HandleFunc("/password/verify-otp", ph.VerifyOTP).Methods("POST", "OPTIONS")
	r.HandleFunc("/password/reset", ph.ResetPassword).Methods("POST", "OPTIONS")
}

func (s *Server) registerAuthRoutes(r *mux.Router) {
	uh := handlers.NewUserHandler(s.userService)
	ah := handlers.NewAuthHandler(s.authService, s.cfg.SessionSecure || s.cfg.IsProduction())

	r.HandleFunc("/api/auth/register", uh.Register).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/login", uh.Login).Methods("POST", "OPTIONS")
	r.Handle("/api/me", s.auth.AuthMiddleware(http.HandlerFunc(uh.GetMyProfile))).Methods("GET", "OPTIONS")
	r.Handle("/api/me", s.auth.AuthMiddleware(http.HandlerFunc(uh.UpdateMyProfile))).Methods("PATCH", "OPTIONS")

	r.HandleFunc("/api/auth/success", ah.AuthSuccess).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/auth/error", ah.AuthError).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/auth/{provider}", ah.ProviderAuth).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/auth/{provider}/callback", ah.ProviderCallback).Methods("GET", "OPTIONS")
}

func (s *Server) registerAdminRoutes(r *mux.Router) {
	adh := handlers.NewAdminHandler(s.resetService)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.auth.AuthMiddleware)
	admin.Use(middlewares.RequirePermission(models.Role.CanManageAccounts))
	admin.HandleFunc("/password-resets/purge", adh.PurgeResetRequests).Methods("POST", "OPTIONS")
}
