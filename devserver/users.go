package devserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles understood by the backend.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	// ErrUserExists is returned by AddUser for a duplicate username.
	ErrUserExists = errors.New("username already exists")
	// ErrUserNotFound is returned for an unknown username.
	ErrUserNotFound = errors.New("user not found")
)

// UserSpec describes an account to create with AddUser.
type UserSpec struct {
	Username string
	Password string
	Email    string
	Role     string
	Inactive bool
	Employee *Employee
}

type account struct {
	id           int64
	username     string
	email        string
	role         string
	active       bool
	passwordHash []byte
	lastLogin    time.Time
	employee     *Employee
}

func (a *account) view() User {
	u := User{
		ID:       a.id,
		Username: a.username,
		Email:    a.email,
		Role:     a.role,
		IsActive: a.active,
	}
	if !a.lastLogin.IsZero() {
		u.LastLogin = a.lastLogin.Format(time.RFC3339)
	}
	return u
}

func (a *account) employeeView() *Employee {
	if a.employee == nil {
		return nil
	}
	emp := *a.employee
	return &emp
}

// AddUser creates an account. The role defaults to "user".
func (s *Server) AddUser(spec UserSpec) (User, error) {
	username := strings.TrimSpace(spec.Username)
	if username == "" || spec.Password == "" {
		return User{}, errors.New("username and password are required")
	}
	role := spec.Role
	if role == "" {
		role = RoleUser
	}
	if role != RoleAdmin && role != RoleUser {
		return User{}, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(spec.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[username]; ok {
		return User{}, ErrUserExists
	}
	s.nextID++
	acct := &account{
		id:           s.nextID,
		username:     username,
		email:        spec.Email,
		role:         role,
		active:       !spec.Inactive,
		passwordHash: hash,
	}
	if spec.Employee != nil {
		emp := *spec.Employee
		if emp.ID == 0 {
			emp.ID = acct.id
		}
		emp.UserID = acct.id
		acct.employee = &emp
	}
	s.accounts[username] = acct
	return acct.view(), nil
}

// SetActive enables or disables an account. Disabled accounts cannot log in
// or refresh.
func (s *Server) SetActive(username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		return ErrUserNotFound
	}
	acct.active = active
	return nil
}

func (s *Server) seedUsers() error {
	if _, err := s.AddUser(UserSpec{
		Username: "admin",
		Password: "admin123",
		Email:    "admin@company.com",
		Role:     RoleAdmin,
		Employee: &Employee{
			EmployeeNumber: "EMP001",
			Name:           "System Administrator",
			Email:          "admin@company.com",
			Position:       "Administrator",
			HireDate:       "2024-01-01",
			Status:         "active",
		},
	}); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	if _, err := s.AddUser(UserSpec{
		Username: "user",
		Password: "user123",
		Email:    "user@company.com",
		Role:     RoleUser,
	}); err != nil {
		return fmt.Errorf("seeding user: %w", err)
	}
	return nil
}

func (s *Server) accountByName(username string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		return nil, false
	}
	cp := *acct
	return &cp, true
}

func (s *Server) accountByID(id int64) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.id == id {
			cp := *acct
			return &cp, true
		}
	}
	return nil, false
}

func (s *Server) recordLogin(username string, at time.Time) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[username]
	acct.lastLogin = at
	return acct.view()
}

func (s *Server) setPassword(id int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.id == id {
			acct.passwordHash = hash
			return nil
		}
	}
	return ErrUserNotFound
}

func (s *Server) employees() []Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Employee, 0, len(s.accounts))
	for _, acct := range s.accounts {
		if acct.employee != nil {
			out = append(out, *acct.employee)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func checkPassword(acct *account, password string) bool {
	return bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) == nil
}
