package session

import "errors"

// Role is the authorization role assigned to a user by the backend.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Employee is the employee profile linked to a user account.
type Employee struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	EmployeeNumber string `json:"employee_number"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Position       string `json:"position,omitempty"`
	DepartmentID   *int64 `json:"department_id,omitempty"`
	HireDate       string `json:"hire_date,omitempty"`
	Status         string `json:"status,omitempty"`
}

// User is the identity record returned by the backend.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	LastLogin string    `json:"last_login,omitempty"`
	Employee  *Employee `json:"employee,omitempty"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Employee != nil {
		emp := *u.Employee
		if emp.DepartmentID != nil {
			id := *emp.DepartmentID
			emp.DepartmentID = &id
		}
		cp.Employee = &emp
	}
	return &cp
}

// Session is a point-in-time view of the store's state.
type Session struct {
	User            *User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

func (s Session) clone() Session {
	s.User = s.User.clone()
	return s
}

// Phase is the position of the store in its authentication state machine.
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseRefreshing
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Result is the outcome of a session operation. When OK is false, Error
// holds a message suitable for display.
type Result struct {
	OK    bool
	Error string
}

func success() Result { return Result{OK: true} }

func failure(msg string) Result { return Result{Error: msg} }

// Err converts a failed Result into an error; it returns nil on success.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return errors.New(r.Error)
}
