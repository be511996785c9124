package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"

	"github.com/zombor/invoice-desk/internal/account"
)

type stateKey struct{}

// requestState is the session and user resolved for one request
type requestState struct {
	session *account.Session
	user    *account.User
}

func stateFrom(ctx context.Context) *requestState {
	if st, ok := ctx.Value(stateKey{}).(*requestState); ok {
		return st
	}
	return &requestState{}
}

// currentUser returns the signed-in user, or nil
func currentUser(r *http.Request) *account.User {
	return stateFrom(r.Context()).user
}

// logRequests logs every request once it has been served
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		slog.Info("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// loadSession resolves the session cookie and its user into the request context
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{}

		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			if sess, ok := s.sessions.Get(cookie.Value); ok {
				st.session = sess
				if username := sess.Username(); username != "" {
					user, err := s.users.GetUser(username)
					switch {
					case err == nil:
						st.user = user
					case errors.Is(err, account.ErrUserNotFound):
						slog.Warn("Session user no longer exists", "user", username)
						sess.SetUsername("")
					default:
						slog.Error("Error loading session user", "user", username, "error", err)
					}
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), stateKey{}, st)))
	})
}

// ensureSession returns the request's session, starting an anonymous one if needed
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) *account.Session {
	st := stateFrom(r.Context())
	if st.session != nil {
		return st.session
	}
	st.session = s.sessions.Create()
	setSessionCookie(w, st.session.ID)
	return st.session
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireRole only lets users with role through. Everyone else is sent to the login
// page with a message naming them.
func (s *Server) requireRole(role account.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user != nil && user.Role == role {
			next(w, r)
			return
		}

		username := "anonymous"
		if user != nil {
			username = user.Username
		}
		slog.Warn("Unauthorized access", "user", username, "method", r.Method, "path", r.URL.Path)

		s.ensureSession(w, r).PutTemp(ErrorMessageKey,
			fmt.Sprintf("Unauthorized access by %s. The user is not a %s.", username, role))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

// layout builds the page chrome for the current request, consuming any pending notice
func (s *Server) layout(r *http.Request) Layout {
	st := stateFrom(r.Context())
	l := Layout{
		User:        st.user,
		ScanEnabled: s.scanner != nil,
	}
	if st.session != nil {
		l.Notice = st.session.TakeTemp(noticeKey)
	}
	return l
}
