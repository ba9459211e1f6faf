package devserver

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges an action without returning data.
type MessageResponse struct {
	Message string `json:"message"`
}

// Employee is the employee profile linked to a user.
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

// User is the public view of an account.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	LastLogin string `json:"last_login,omitempty"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /auth/login.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// RefreshResponse is returned from POST /auth/refresh.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// MeResponse is returned from GET /auth/me.
type MeResponse struct {
	User     User      `json:"user"`
	Employee *Employee `json:"employee"`
}

// ChangePasswordRequest is the JSON body for POST /auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ListEmployeesResponse is returned from GET /employees.
type ListEmployeesResponse struct {
	Employees   []Employee `json:"employees"`
	Total       int        `json:"total"`
	Pages       int        `json:"pages"`
	CurrentPage int        `json:"current_page"`
	PerPage     int        `json:"per_page"`
}

// EmployeeResponse is returned from GET /employees/{employeeID}.
type EmployeeResponse struct {
	Employee Employee `json:"employee"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
