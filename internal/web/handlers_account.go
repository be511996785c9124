package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/invoice-desk/internal/account"
)

// LoginView is the data behind the sign-in page
type LoginView struct {
	Layout
	Username string
}

// handleLoginForm renders the sign-in page along with any pending authorization message
func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	view := LoginView{Layout: s.layout(r)}
	if sess := stateFrom(r.Context()).session; sess != nil {
		view.Error = sess.TakeTemp(ErrorMessageKey)
	}
	s.views.render(w, http.StatusOK, "login", view)
}

// handleLogin signs a user in on a fresh session
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	user, err := s.users.Authenticate(username, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, account.ErrInvalidCredentials) {
			slog.Error("Error authenticating user", "user", username, "error", err)
		} else {
			slog.Warn("Failed login", "user", username)
		}
		view := LoginView{Layout: s.layout(r), Username: username}
		view.Error = "Invalid username or password."
		s.views.render(w, http.StatusUnauthorized, "login", view)
		return
	}

	st := stateFrom(r.Context())
	var uploads map[string]string
	if st.session != nil {
		uploads = st.session.Uploads()
		s.sessions.Delete(st.session.ID)
	}
	st.session = s.sessions.Create()
	for name, docType := range uploads {
		st.session.AddUpload(name, docType)
	}
	st.session.SetUsername(user.Username)
	st.user = user
	setSessionCookie(w, st.session.ID)

	slog.Info("User signed in", "user", user.Username, "role", user.Role)

	target := "/invoices/new"
	if user.IsManager() {
		target = "/invoices/receivables"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// handleLogout ends the session along with any documents it scanned but never attached
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	if st.session != nil {
		discardUploads(s.documents, st.session)
		s.sessions.Delete(st.session.ID)
		if st.user != nil {
			slog.Info("User signed out", "user", st.user.Username)
		}
	}
	clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
