package timesheet

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate for any login failure,
// without telling which part was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInactiveUser is returned by CurrentPrincipal when the user behind a
// session was deactivated or removed.
var ErrInactiveUser = errors.New("user is inactive or no longer exists")

const minPasswordLength = 8

// =============================================================================
// DIRECTORY SERVICE - Areas and users
// =============================================================================

type DirectoryService struct {
	env    *env
	logger *zap.Logger
}

func (s *DirectoryService) CreateArea(ctx context.Context, p Principal, name string) (*Area, error) {
	if !s.env.policy.CanManageDirectory(p) {
		return nil, forbidden("create areas", "administrators only")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid(CodeInvalidInput, "name", "area name is required")
	}
	area := Area{ID: AreaID(s.env.newID()), Name: name, IsActive: true, CreatedAt: s.env.now()}
	if err := s.env.store.SaveArea(ctx, area); err != nil {
		return nil, fmt.Errorf("save area: %w", err)
	}
	s.logger.Info("area created", zap.String("area_id", string(area.ID)), zap.String("name", name))
	return &area, nil
}

// ListAreas is open to every authenticated principal.
func (s *DirectoryService) ListAreas(ctx context.Context, _ Principal) ([]Area, error) {
	areas, err := s.env.store.ListAreas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i].Name < areas[j].Name })
	return areas, nil
}

type UserInput struct {
	Email    string
	Name     string
	Password string
	Role     Role
	AreaID   AreaID
}

func (s *DirectoryService) CreateUser(ctx context.Context, p Principal, in UserInput) (*User, error) {
	if !s.env.policy.CanManageDirectory(p) {
		return nil, forbidden("create users", "administrators only")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, invalid(CodeInvalidInput, "role", "role must be one of ADMINISTRADOR, COORDINADOR, COLABORADOR")
	}
	if err := s.checkArea(ctx, in.AreaID); err != nil {
		return nil, err
	}
	existing, err := s.env.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if existing != nil {
		return nil, &ConflictError{Resource: "user", Message: fmt.Sprintf("a user with email %s already exists", email)}
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		ID:           UserID(s.env.newID()),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         in.Role,
		AreaID:       in.AreaID,
		IsActive:     true,
		CreatedAt:    s.env.now(),
	}
	if err := s.env.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	s.logger.Info("user created",
		zap.String("user_id", string(user.ID)),
		zap.Stringer("role", user.Role),
		zap.String("area_id", string(user.AreaID)))
	return &user, nil
}

func (s *DirectoryService) checkArea(ctx context.Context, id AreaID) error {
	if id == "" {
		return nil
	}
	area, err := s.env.store.GetArea(ctx, id)
	if err != nil {
		return fmt.Errorf("get area: %w", err)
	}
	if area == nil || !area.IsActive {
		return notFound("area", id)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return "", invalid(CodeInvalidInput, "email", "%q is not a valid email address", raw)
	}
	return email, nil
}

// HashPassword bcrypt-hashes a password after checking its length.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", invalid(CodeInvalidInput, "password", "password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// canSeeUser: admins see everyone, coordinators their area, everyone
// themselves.
func (s *DirectoryService) canSeeUser(p Principal, u User) bool {
	if u.ID == p.UserID {
		return true
	}
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(u.AreaID)
	case RoleCollaborator:
		return false
	}
	return false
}

func (s *DirectoryService) GetUser(ctx context.Context, p Principal, id UserID) (*User, error) {
	u, err := s.env.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, notFound("user", id)
	}
	if !s.canSeeUser(p, *u) {
		return nil, forbidden("view this user", "")
	}
	return u, nil
}

// ListUsers narrows the filter to what the principal may see.
func (s *DirectoryService) ListUsers(ctx context.Context, p Principal, f UserFilter) ([]User, error) {
	switch p.Role {
	case RoleAdministrator:
	case RoleCoordinator:
		if p.AreaID == "" {
			return []User{}, nil
		}
		f.AreaID = p.AreaID
	case RoleCollaborator:
		u, err := s.GetUser(ctx, p, p.UserID)
		if err != nil {
			return nil, err
		}
		return []User{*u}, nil
	default:
		return nil, forbidden("list users", "")
	}
	users, err := s.env.store.ListUsers(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UserUpdate is a partial edit; nil fields are left alone.
type UserUpdate struct {
	Name     *string
	Password *string
	Role     *Role
	AreaID   *AreaID
	IsActive *bool
}

func (s *DirectoryService) UpdateUser(ctx context.Context, p Principal, id UserID, u UserUpdate) (*User, error) {
	if !s.env.policy.CanManageDirectory(p) {
		return nil, forbidden("edit users", "administrators only")
	}
	user, err := s.env.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, notFound("user", id)
	}

	updated := *user
	if u.Name != nil {
		updated.Name = strings.TrimSpace(*u.Name)
	}
	if u.Role != nil {
		if !u.Role.Valid() {
			return nil, invalid(CodeInvalidInput, "role", "role must be one of ADMINISTRADOR, COORDINADOR, COLABORADOR")
		}
		updated.Role = *u.Role
	}
	if u.AreaID != nil {
		if err := s.checkArea(ctx, *u.AreaID); err != nil {
			return nil, err
		}
		updated.AreaID = *u.AreaID
	}
	if u.IsActive != nil {
		updated.IsActive = *u.IsActive
	}
	if u.Password != nil {
		hash, err := HashPassword(*u.Password)
		if err != nil {
			return nil, err
		}
		updated.PasswordHash = hash
	}
	if err := s.env.store.SaveUser(ctx, updated); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return &updated, nil
}

// Authenticate checks an email/password pair and returns the active user.
func (s *DirectoryService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.env.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login rejected", zap.String("user_id", string(user.ID)))
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// CurrentPrincipal reloads a user for an authenticated session. Role and area
// come from the directory, not from whatever the session captured at login.
func (s *DirectoryService) CurrentPrincipal(ctx context.Context, id UserID) (Principal, error) {
	user, err := s.env.store.GetUser(ctx, id)
	if err != nil {
		return Principal{}, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return Principal{}, ErrInactiveUser
	}
	return user.Principal(), nil
}

// EnsureAdmin creates an administrator with the given credentials when no
// user with that email exists yet. It is how a fresh database gets its first
// principal; it returns the existing user unchanged otherwise.
func (s *DirectoryService) EnsureAdmin(ctx context.Context, email, password, name string) (*User, bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	existing, err := s.env.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	user := User{
		ID:           UserID(s.env.newID()),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         RoleAdministrator,
		IsActive:     true,
		CreatedAt:    s.env.now(),
	}
	if err := s.env.store.SaveUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("save user: %w", err)
	}
	s.logger.Info("bootstrap administrator created", zap.String("user_id", string(user.ID)))
	return &user, true, nil
}
