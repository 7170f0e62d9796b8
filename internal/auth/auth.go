// Package auth handles password login, login tokens and user accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/validate"
)

// UserStore is the persistence the authenticator needs.
type UserStore interface {
	CreateUser(ctx context.Context, u model.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context, role model.UserRole) ([]model.User, error)
	ToggleUserActive(ctx context.Context, id int64) error
	UserCount(ctx context.Context) (int, error)
	CreateAuthSession(ctx context.Context, userID int64) (string, error)
	GetAuthSession(ctx context.Context, token string) (*model.AuthSession, error)
	DeleteAuthSession(ctx context.Context, token string) error
}

var errBadCredentials = &model.AuthError{Reason: "invalid username or password"}

// NewUser is the input for creating an account.
type NewUser struct {
	Username    string         `json:"username" validate:"required,min=3,max=64,alphanum"`
	DisplayName string         `json:"display_name" validate:"max=128"`
	Password    string         `json:"password" validate:"required,min=8,max=72"`
	Role        model.UserRole `json:"role" validate:"required,oneof=student teacher admin"`
}

// Authenticator logs users in and resolves login tokens.
type Authenticator struct {
	users    UserStore
	validate *validate.Validator
	cost     int
}

// New creates an Authenticator.
func New(users UserStore, v *validate.Validator) *Authenticator {
	return &Authenticator{users: users, validate: v, cost: bcrypt.DefaultCost}
}

// Login checks the password and returns the user with a fresh login token.
// Unknown users, inactive users and wrong passwords fail alike.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, "", errBadCredentials
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}
	if !user.Active {
		return nil, "", errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", errBadCredentials
	}

	token, err := a.users.CreateAuthSession(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("create auth session: %w", err)
	}
	slog.Info("user logged in", "user_id", user.ID, "role", user.Role)
	return user, token, nil
}

// Logout invalidates a login token.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.users.DeleteAuthSession(ctx, token)
}

// Resolve returns the active user behind a login token.
func (a *Authenticator) Resolve(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, &model.AuthError{Reason: "not logged in"}
	}
	sess, err := a.users.GetAuthSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	if sess == nil {
		return nil, &model.AuthError{Reason: "session expired"}
	}
	user, err := a.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, &model.AuthError{Reason: "unknown user"}
		}
		return nil, err
	}
	if !user.Active {
		return nil, &model.AuthError{Reason: "account disabled"}
	}
	return user, nil
}

// CreateUser validates and stores a new account.
func (a *Authenticator) CreateUser(ctx context.Context, in NewUser) (*model.User, error) {
	if err := a.validate.Struct(in); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		Username:     in.Username,
		DisplayName:  in.DisplayName,
		PasswordHash: string(hash),
		Role:         in.Role,
		Active:       true,
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	id, err := a.users.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	u.ID = id
	return &u, nil
}

// ListUsers returns accounts, optionally filtered by role.
func (a *Authenticator) ListUsers(ctx context.Context, role model.UserRole) ([]model.User, error) {
	return a.users.ListUsers(ctx, role)
}

// ToggleActive enables or disables an account. Admins cannot disable
// themselves.
func (a *Authenticator) ToggleActive(ctx context.Context, actor *model.User, userID int64) error {
	if actor != nil && actor.ID == userID {
		return model.NewValidationError("cannot deactivate your own account")
	}
	return a.users.ToggleUserActive(ctx, userID)
}

// SeedAdmin creates the initial admin account when no users exist.
func (a *Authenticator) SeedAdmin(ctx context.Context, password string) error {
	count, err := a.users.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or AUTOGRADE_ADMIN_PASSWORD env var")
	}
	if _, err := a.CreateUser(ctx, NewUser{
		Username:    "admin",
		DisplayName: "Administrator",
		Password:    password,
		Role:        model.UserRoleAdmin,
	}); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
