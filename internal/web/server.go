package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zombor/invoice-desk/internal/account"
	"github.com/zombor/invoice-desk/internal/cache"
	"github.com/zombor/invoice-desk/internal/invoice"
	"github.com/zombor/invoice-desk/internal/scanning"
)

const (
	// BinderCacheKey is the process cache key of the shared invoice binder
	BinderCacheKey = "InvoiceBinder"

	// SessionCookieName is the cookie holding the session id
	SessionCookieName = "invoice_desk_session"

	// ErrorMessageKey is the temp-data key read by the login page
	ErrorMessageKey = "ErrorMessage"

	// noticeKey is the temp-data key for success messages
	noticeKey = "Notice"
)

// Deps are the collaborators the server is built from
type Deps struct {
	Repository invoice.Repository
	Binders    *cache.Cache[*invoice.Binder]
	Users      account.Store
	Sessions   *account.Sessions
	Documents  invoice.DocumentStore
	Scanner    scanning.Scanner // optional; enables POST /invoices/scan
	TimeSource invoice.TimeSource
}

// Server serves the invoicing pages
type Server struct {
	repo       invoice.Repository
	binders    *cache.Cache[*invoice.Binder]
	users      account.Store
	sessions   *account.Sessions
	documents  invoice.DocumentStore
	scanner    scanning.Scanner
	timeSource invoice.TimeSource
	views      *views
	mux        *http.ServeMux
	handler    http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(deps Deps) *Server {
	return NewServerWithMux(deps, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(deps Deps, mux *http.ServeMux) *Server {
	s := &Server{
		repo:       deps.Repository,
		binders:    deps.Binders,
		users:      deps.Users,
		sessions:   deps.Sessions,
		documents:  deps.Documents,
		scanner:    deps.Scanner,
		timeSource: deps.TimeSource,
		views:      newViews(),
		mux:        mux,
	}
	if s.timeSource == nil {
		s.timeSource = systemClock{}
	}
	s.registerRoutes()
	s.handler = logRequests(s.loadSession(s.mux))
	return s
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// binder resolves the shared binder, creating it on first use or after expiry
func (s *Server) binder() (*invoice.Binder, error) {
	return s.binders.GetOrCreate(BinderCacheKey, func() (*invoice.Binder, error) {
		slog.Debug("Creating invoice binder")
		return invoice.NewBinderWithDeps(s.repo, s.timeSource), nil
	})
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)

	s.mux.HandleFunc("GET /login", s.handleLoginForm)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /logout", s.handleLogout)

	s.mux.HandleFunc("GET /invoices/new", s.handleAddInvoiceForm)
	s.mux.HandleFunc("POST /invoices/new", s.handleAddInvoice)
	if s.scanner != nil {
		s.mux.HandleFunc("POST /invoices/scan", s.handleScanInvoice)
	}

	manager := func(h http.HandlerFunc) http.HandlerFunc {
		return s.requireRole(account.RoleManager, h)
	}
	s.mux.HandleFunc("GET /invoices/receivables", manager(s.handleReceivables))
	s.mux.HandleFunc("GET /invoices/{id}/edit", manager(s.handleEditInvoiceForm))
	s.mux.HandleFunc("POST /invoices/{id}/edit", manager(s.handleEditInvoice))
	s.mux.HandleFunc("POST /invoices/{id}/paid", manager(s.handleInvoicePaid))
	s.mux.HandleFunc("GET /invoices/{id}/document", manager(s.handleInvoiceDocument))

	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/invoices/new", http.StatusSeeOther)
	})
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	slog.Info("Starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleStaticCSS serves the stylesheet
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write(appCSS)
}
