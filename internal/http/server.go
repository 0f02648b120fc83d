package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"finsight/internal/auth"
	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/middleware/ratelimit"
	"finsight/internal/middleware/security"
	"finsight/internal/middleware/trace"
	"finsight/internal/services"
	appweb "finsight/web"
)

// Services are the application services the handlers call.
type Services struct {
	Users         *services.UserService
	Ledger        *services.LedgerService
	Categories    *services.CategoryService
	Accounts      *services.AccountService
	Reports       *services.ReportService
	Notifications *services.NotificationService
	Dashboard     *services.DashboardService
}

type Config struct {
	Addr               string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server is the FinSight web server.
type Server struct {
	*http.Server
	svc          Services
	sessions     *auth.Manager
	pages        map[string]*template.Template
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	ready        func(context.Context) error
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer parses the templates and builds the router. The returned
// server's rate limiter runs until Shutdown.
func NewServer(cfg Config, svc Services, sessions *auth.Manager, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Discard()
	}
	pages, err := parseTemplates(appweb.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}

	detector := security.NewDetector()
	s := &Server{
		svc:      svc,
		sessions: sessions,
		pages:    pages,
		logger:   logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),
		ready:    cfg.Ready,
		started:  time.Now(),
	}

	s.Server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(cfg, static),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(cfg Config, static fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(s.tracer.Handler)
	r.Use(log.RequestIDMiddleware(trace.FromRequest))
	r.Use(s.detector.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited, http.MethodPost))
	r.Use(s.sessions.Middleware)

	r.NotFound(s.handleNotFound)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.With(security.StaticAssetMiddleware(86400)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/", s.handleIndex)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(auth.RedirectAuthenticated("/dashboard"))
		r.Get("/login", s.handleLoginPage)
		r.Post("/login", s.handleLogin)
		r.Get("/register", s.handleRegisterPage)
		r.Post("/register", s.handleRegister)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser("/login"), security.NoStore)

		r.Get("/dashboard", s.handleDashboard)

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", s.handleExpenses)
			r.Post("/", s.handleCreateExpense)
			r.Get("/new", s.handleNewExpense)
			r.Get("/{id}/edit", s.handleEditExpense)
			r.Post("/{id}", s.handleUpdateExpense)
			r.Post("/{id}/delete", s.handleDeleteExpense)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleCategories)
			r.Post("/", s.handleCreateCategory)
			r.Post("/{id}", s.handleUpdateCategory)
			r.Post("/{id}/delete", s.handleDeleteCategory)
			r.Post("/{id}/budget", s.handleCategoryBudget)
		})

		r.Get("/budget", s.handleBudgetPage)
		r.Post("/budget", s.handleUpdateBudget)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.handleReports)
			r.Get("/export.csv", s.handleExportCSV)
			r.Post("/export/sheets", s.handleExportSheets)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleAccounts)
			r.Post("/", s.handleLinkAccount)
			r.Post("/sync", s.handleSyncAll)
			r.Post("/{id}/unlink", s.handleUnlinkAccount)
			r.Post("/{id}/sync", s.handleSyncAccount)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleNotifications)
			r.Post("/read-all", s.handleMarkAllRead)
			r.Post("/{id}/read", s.handleMarkRead)
			r.Post("/{id}/delete", s.handleDeleteNotification)
		})

		r.Get("/profile", s.handleProfile)
		r.Post("/profile", s.handleUpdateProfile)
		r.Post("/profile/password", s.handleChangePassword)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", trace.HeaderRequestID},
			ExposedHeaders:   []string{trace.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(auth.RequireUser("/login"), security.NoStore)
		r.Get("/budget", s.handleAPIBudget)
		r.Get("/reports/chart", s.handleAPIChart)
		r.Get("/notifications/unread-count", s.handleAPIUnreadCount)
	})

	return r
}

// Shutdown stops the rate limiter and drains the HTTP server. Safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if shutdownErr := s.Server.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
			err = shutdownErr
		}
	})
	return err
}

// reqLogger is the request-scoped logger carrying request and user ids.
func (s *Server) reqLogger(r *http.Request) *log.Logger {
	return log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
}

// page is the data every template receives.
type page struct {
	Title  string
	Nav    string
	User   *core.User
	Unread int
	Flash  *auth.Flash
	Error  string
	Errors FieldErrors
	Data   any
	Now    time.Time
}

// newPage loads the chrome shared by authenticated pages. It returns false
// after writing a response when the page cannot be served.
func (s *Server) newPage(w http.ResponseWriter, r *http.Request, title, nav string) (*page, bool) {
	p := &page{Title: title, Nav: nav, Errors: FieldErrors{}, Now: time.Now()}
	if f, ok := auth.PopFlash(w, r); ok {
		p.Flash = &f
	}
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		return p, true
	}

	user, err := s.svc.Users.Get(r.Context(), sess.UserID)
	if errors.Is(err, core.ErrNotFound) {
		s.sessions.Logout(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	if err != nil {
		s.serverError(w, r, err)
		return nil, false
	}
	p.User = &user

	if n, err := s.svc.Notifications.UnreadCount(r.Context(), sess.UserID); err == nil {
		p.Unread = n
	} else {
		s.reqLogger(r).WarnContext(r.Context(), "Unread count failed", log.FieldError, err)
	}
	return p, true
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, p *page) {
	t, ok := s.pages[name]
	if !ok {
		s.reqLogger(r).ErrorContext(r.Context(), "Template not found",
			"template", name,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		s.reqLogger(r).ErrorContext(r.Context(), "Template execution failed",
			"template", name,
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		http.Error(w, "could not render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError shows the error page, or an htmx fragment for htmx requests.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if isHTMX(r) {
		ErrorResponse(status, message).TriggerErrorNotification(message).Write(w)
		return
	}
	p := &page{Title: http.StatusText(status), Error: message, Data: status, Now: time.Now()}
	if sess, ok := auth.FromContext(r.Context()); ok {
		if user, err := s.svc.Users.Get(r.Context(), sess.UserID); err == nil {
			p.User = &user
		}
	}
	s.render(w, r, status, "error.html", p)
}

// serverError logs err and answers with the status it maps to.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.reqLogger(r).ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeInternal).ToSlice()...)
	}
	s.renderError(w, r, status, userMessage(err))
}

// redirectWithFlash is the success path of every form post.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, target, kind, message string) {
	auth.SetFlash(w, kind, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.reqLogger(r).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	s.renderError(w, r, http.StatusTooManyRequests, "Too many requests. Please wait a minute and try again.")
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound, "The page you are looking for does not exist.")
}
