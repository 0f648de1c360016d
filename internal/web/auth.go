package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/accounts"
	"github.com/conorfennell/memnotes/internal/session"
	"github.com/conorfennell/memnotes/internal/validation"
)

type loginForm struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type registerForm struct {
	Username     string `validate:"required,username"`
	Password     string `validate:"required"`
	Confirmation string `validate:"required,eqfield=Password"`
}

type passwordForm struct {
	OldPassword  string `validate:"required"`
	Password     string `validate:"required"`
	Confirmation string `validate:"required,eqfield=Password"`
}

func (s *Server) handleLoginForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session.FromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.render(w, r, http.StatusOK, "login", nil)
	}
}

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := loginForm{Username: r.PostFormValue("username"), Password: r.PostFormValue("password")}
		if err := s.validate.Struct(form); err != nil {
			s.render(w, r, http.StatusUnprocessableEntity, "login", viewData{
				"Errors": validation.Messages(err), "Form": form,
			})
			return
		}

		acc, err := s.accounts.Authenticate(r.Context(), form.Username, form.Password)
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			s.render(w, r, http.StatusUnauthorized, "login", viewData{
				"Errors": []string{"Invalid username and/or password"}, "Form": form,
			})
			return
		}
		if err != nil {
			s.logger.Error("Login failed", zap.String("username", form.Username), zap.Error(err))
			s.render(w, r, http.StatusInternalServerError, "login", viewData{
				"Errors": []string{"Something went wrong, please try again"}, "Form": form,
			})
			return
		}

		sess := session.FromContext(r.Context())
		sess.Login(acc.ID, acc.Username, acc.HasTestSet)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session.FromContext(r.Context()).Destroy()
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func (s *Server) handleRegisterForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "register", nil)
	}
}

// handleRegister creates the account and its note store, then logs the new
// user in.
func (s *Server) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := registerForm{
			Username:     r.PostFormValue("username"),
			Password:     r.PostFormValue("password"),
			Confirmation: r.PostFormValue("confirmation"),
		}
		fail := func(status int, msgs ...string) {
			s.render(w, r, status, "register", viewData{"Errors": msgs, "Form": form})
		}
		if err := s.validate.Struct(form); err != nil {
			fail(http.StatusUnprocessableEntity, validation.Messages(err)...)
			return
		}

		ctx := r.Context()
		acc, err := s.accounts.Register(ctx, form.Username, form.Password)
		if errors.Is(err, accounts.ErrUsernameTaken) {
			fail(http.StatusConflict, "Username already exists")
			return
		}
		if err != nil {
			s.logger.Error("Registration failed", zap.String("username", form.Username), zap.Error(err))
			fail(http.StatusInternalServerError, "Something went wrong, please try again")
			return
		}

		if err := s.stores.Create(acc.Username); err != nil {
			s.logger.Error("Failed to create note store", zap.String("username", acc.Username), zap.Error(err))
			if delErr := s.accounts.Delete(ctx, acc.ID); delErr != nil {
				s.logger.Error("Failed to roll back account", zap.Uint("account_id", acc.ID), zap.Error(delErr))
			}
			fail(http.StatusInternalServerError, "Something went wrong, please try again")
			return
		}

		s.logger.Info("Account registered", zap.String("username", acc.Username))
		session.FromContext(ctx).Login(acc.ID, acc.Username, acc.HasTestSet)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) handlePasswordForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "password", nil)
	}
}

func (s *Server) handlePassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := passwordForm{
			OldPassword:  r.PostFormValue("old_password"),
			Password:     r.PostFormValue("password"),
			Confirmation: r.PostFormValue("confirmation"),
		}
		if err := s.validate.Struct(form); err != nil {
			s.render(w, r, http.StatusUnprocessableEntity, "password", viewData{"Errors": validation.Messages(err)})
			return
		}

		sess := session.FromContext(r.Context())
		err := s.accounts.ChangePassword(r.Context(), sess.Data().AccountID, form.OldPassword, form.Password)
		switch {
		case errors.Is(err, accounts.ErrInvalidCredentials):
			s.render(w, r, http.StatusUnauthorized, "password", viewData{"Errors": []string{"Current password is incorrect"}})
		case err != nil:
			s.logger.Error("Password change failed", zap.Uint("account_id", sess.Data().AccountID), zap.Error(err))
			s.render(w, r, http.StatusInternalServerError, "password", viewData{"Errors": []string{"Something went wrong, please try again"}})
		default:
			redirect(w, r, "/", "Password changed successfully!")
		}
	}
}
