// Package auth manages local accounts and the signed-in session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrNotSignedIn        = errors.New("no user logged in")
)

// Profile carries profile changes. Nil fields keep the stored value.
type Profile struct {
	Name              *string
	Email             *string
	AvatarURL         *string
	PreferredCurrency *string
	ExpenseLimitMinor *int64
}

// Service stores users under kv.KeyUsers and the current session under
// kv.KeyCurrentUser.
type Service struct {
	mu       sync.Mutex
	kv       kv.Store
	cost     int
	currency string
	now      func() time.Time
	newID    func() string
	logger   *log.Logger
}

type Option func(*Service)

// WithCost sets the bcrypt cost used for new hashes.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithDefaultCurrency(code string) Option {
	return func(s *Service) { s.currency = code }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(store kv.Store, opts ...Option) *Service {
	s := &Service{
		kv:       store,
		cost:     bcrypt.DefaultCost,
		currency: core.DefaultCurrency,
		now:      time.Now,
		newID:    func() string { return "user-" + uuid.NewString() },
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentAuth)
	return s
}

func (s *Service) users(ctx context.Context) ([]core.User, error) {
	var users []core.User
	if _, err := kv.GetJSON(ctx, s.kv, kv.KeyUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates an account and signs it in.
func (s *Service) Signup(ctx context.Context, name, email, password string) (core.Session, error) {
	email = normalizeEmail(email)
	if err := errors.Join(core.ValidateName(name), core.ValidateEmail(email), core.ValidatePassword(password)); err != nil {
		return core.Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.Session{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		s.logger.LogError(ctx, "Failed to load users", err, log.OpSignup, log.ErrorTypeStorage, nil)
		return core.Session{}, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		if u.Email == email {
			return core.Session{}, ErrEmailTaken
		}
	}

	user := core.User{
		ID:                s.newID(),
		Name:              strings.TrimSpace(name),
		Email:             email,
		PasswordHash:      string(hash),
		PreferredCurrency: s.currency,
		CreatedAt:         s.now().UTC(),
	}
	if err := kv.SetJSON(ctx, s.kv, kv.KeyUsers, append(users, user)); err != nil {
		s.logger.LogError(ctx, "Failed to save user", err, log.OpSignup, log.ErrorTypeStorage, nil)
		return core.Session{}, fmt.Errorf("save user: %w", err)
	}

	session := user.Session()
	if err := s.setSession(ctx, session); err != nil {
		return core.Session{}, err
	}
	s.logger.InfoContext(ctx, "User signed up", log.FieldUserID, user.ID, log.FieldOperation, log.OpSignup)
	return session, nil
}

// Login checks the credentials and stores the session.
func (s *Service) Login(ctx context.Context, email, password string) (core.Session, error) {
	users, err := s.users(ctx)
	if err != nil {
		s.logger.LogError(ctx, "Failed to load users", err, log.OpLogin, log.ErrorTypeStorage, nil)
		return core.Session{}, fmt.Errorf("load users: %w", err)
	}

	email = normalizeEmail(email)
	for _, u := range users {
		if u.Email != email {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
			break
		}
		session := u.Session()
		if err := s.setSession(ctx, session); err != nil {
			return core.Session{}, err
		}
		s.logger.InfoContext(ctx, "User logged in", log.FieldUserID, u.ID, log.FieldOperation, log.OpLogin)
		return session, nil
	}

	s.logger.WarnContext(ctx, "Login rejected", log.FieldOperation, log.OpLogin, log.FieldErrorType, log.ErrorTypeAuth)
	return core.Session{}, ErrInvalidCredentials
}

// Logout clears the stored session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.kv.Delete(ctx, kv.KeyCurrentUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// CurrentUser returns the stored session, if any.
func (s *Service) CurrentUser(ctx context.Context) (core.Session, bool) {
	var session core.Session
	found, err := kv.GetJSON(ctx, s.kv, kv.KeyCurrentUser, &session)
	if err != nil {
		s.logger.LogError(ctx, "Failed to load session", err, log.OpRead, log.ErrorTypeStorage, nil)
		return core.Session{}, false
	}
	return session, found && session.ID != ""
}

// UserIDs lists every known account id.
func (s *Service) UserIDs(ctx context.Context) []string {
	users, err := s.users(ctx)
	if err != nil {
		s.logger.LogError(ctx, "Failed to load users", err, log.OpList, log.ErrorTypeStorage, nil)
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

// UpdateProfile applies p to the signed-in user and refreshes the session.
func (s *Service) UpdateProfile(ctx context.Context, p Profile) (core.Session, error) {
	return s.updateCurrent(ctx, log.OpUpdate, func(u *core.User) error {
		if p.Name != nil {
			if err := core.ValidateName(*p.Name); err != nil {
				return err
			}
			u.Name = strings.TrimSpace(*p.Name)
		}
		if p.Email != nil {
			email := normalizeEmail(*p.Email)
			if err := core.ValidateEmail(email); err != nil {
				return err
			}
			u.Email = email
		}
		if p.AvatarURL != nil {
			u.AvatarURL = p.AvatarURL
		}
		if p.PreferredCurrency != nil && *p.PreferredCurrency != "" {
			u.PreferredCurrency = strings.ToUpper(*p.PreferredCurrency)
		}
		if p.ExpenseLimitMinor != nil {
			if *p.ExpenseLimitMinor < 0 {
				return &core.ValidationError{Field: "expenseLimitMinor", Err: core.ErrInvalidAmount}
			}
			u.ExpenseLimitMinor = *p.ExpenseLimitMinor
		}
		return nil
	})
}

// ChangePassword replaces the signed-in user's password after checking the
// current one.
func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	if err := core.ValidatePassword(next); err != nil {
		return err
	}
	_, err := s.updateCurrent(ctx, log.OpUpdate, func(u *core.User) error {
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
			return ErrInvalidCredentials
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = string(hash)
		return nil
	})
	return err
}

func (s *Service) updateCurrent(ctx context.Context, op string, apply func(*core.User) error) (core.Session, error) {
	session, ok := s.CurrentUser(ctx)
	if !ok {
		return core.Session{}, ErrNotSignedIn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		s.logger.LogError(ctx, "Failed to load users", err, op, log.ErrorTypeStorage, log.NewFields().WithUser(session.ID))
		return core.Session{}, fmt.Errorf("load users: %w", err)
	}
	idx := -1
	for i := range users {
		if users[i].ID == session.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.Session{}, fmt.Errorf("user %s: %w", session.ID, core.ErrNotFound)
	}

	updated := users[idx]
	if err := apply(&updated); err != nil {
		return core.Session{}, err
	}
	for i, u := range users {
		if i != idx && u.Email == updated.Email {
			return core.Session{}, ErrEmailTaken
		}
	}
	users[idx] = updated

	if err := kv.SetJSON(ctx, s.kv, kv.KeyUsers, users); err != nil {
		s.logger.LogError(ctx, "Failed to save user", err, op, log.ErrorTypeStorage, log.NewFields().WithUser(session.ID))
		return core.Session{}, fmt.Errorf("save user: %w", err)
	}
	next := updated.Session()
	if err := s.setSession(ctx, next); err != nil {
		return core.Session{}, err
	}
	return next, nil
}

func (s *Service) setSession(ctx context.Context, session core.Session) error {
	if err := kv.SetJSON(ctx, s.kv, kv.KeyCurrentUser, session); err != nil {
		s.logger.LogError(ctx, "Failed to save session", err, log.OpLogin, log.ErrorTypeStorage,
			log.NewFields().WithUser(session.ID))
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
