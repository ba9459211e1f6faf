package devserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const minPasswordLength = 6

// Login handles POST /auth/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if blocked, retryAfter := s.limiter.check(username); blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	acct, ok := s.accountByName(username)
	if !ok || !checkPassword(acct, req.Password) {
		s.limiter.recordFailure(username)
		s.logger.InfoContext(r.Context(), "login rejected", "username", username)
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if !acct.active {
		writeError(w, http.StatusUnauthorized, "account is disabled")
		return
	}
	s.limiter.recordSuccess(username)

	access, err := s.issue(acct, tokenAccess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	refresh, err := s.issue(acct, tokenRefresh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	user := s.recordLogin(username, time.Now().UTC())
	s.logger.InfoContext(r.Context(), "login", "username", username, "role", acct.role)
	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	})
}

// Refresh handles POST /auth/refresh. It requires a refresh token.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	if s.failRefresh.Load() {
		writeError(w, http.StatusUnauthorized, "token has expired")
		return
	}
	claims := claimsFromContext(r.Context())
	acct, ok := s.accountForClaims(claims)
	if !ok || !acct.active {
		writeError(w, http.StatusUnauthorized, "user not found or inactive")
		return
	}
	access, err := s.issue(acct, tokenAccess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{AccessToken: access})
}

// Logout handles POST /auth/logout by revoking the presented access token.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	s.revoke(claims)
	s.logger.InfoContext(r.Context(), "logout", "username", claims.Username)
	writeMessage(w, "successfully logged out")
}

// Me handles GET /auth/me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.accountForClaims(claimsFromContext(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		User:     acct.view(),
		Employee: acct.employeeView(),
	})
}

// ChangePassword handles POST /auth/change-password.
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "current and new password are required")
		return
	}
	acct, ok := s.accountForClaims(claimsFromContext(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if !checkPassword(acct, req.CurrentPassword) {
		writeError(w, http.StatusBadRequest, "current password is incorrect")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "new password must be at least 6 characters")
		return
	}
	if err := s.setPassword(acct.id, req.NewPassword); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}
	s.logger.InfoContext(r.Context(), "password changed", slog.String("username", acct.username))
	writeMessage(w, "password changed successfully")
}

// ListEmployees handles GET /employees. Admins page through every
// employee, optionally filtered by "search"; other users see only their own
// record.
func (s *Server) ListEmployees(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims.Role != RoleAdmin {
		resp := ListEmployeesResponse{Employees: []Employee{}, CurrentPage: 1, PerPage: 1}
		if acct, ok := s.accountForClaims(claims); ok && acct.employee != nil {
			resp.Employees = append(resp.Employees, *acct.employeeView())
			resp.Total, resp.Pages = 1, 1
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	page, perPage := parsePagination(r)
	all := filterEmployees(s.employees(), r.URL.Query().Get("search"))
	start, end, pages := paginate(len(all), page, perPage)
	writeJSON(w, http.StatusOK, ListEmployeesResponse{
		Employees:   all[start:end],
		Total:       len(all),
		Pages:       pages,
		CurrentPage: page,
		PerPage:     perPage,
	})
}

// GetEmployee handles GET /employees/{employeeID}. Users other than admins
// may only read their own record.
func (s *Server) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "employeeID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "employee not found")
		return
	}
	var found *Employee
	for _, emp := range s.employees() {
		if emp.ID == id {
			found = &emp
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "employee not found")
		return
	}
	claims := claimsFromContext(r.Context())
	if claims.Role != RoleAdmin {
		if uid, err := claims.userID(); err != nil || uid != found.UserID {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
	}
	writeJSON(w, http.StatusOK, EmployeeResponse{Employee: *found})
}

func filterEmployees(emps []Employee, search string) []Employee {
	if search == "" {
		return emps
	}
	search = strings.ToLower(search)
	out := emps[:0]
	for _, e := range emps {
		if strings.Contains(strings.ToLower(e.Name), search) ||
			strings.Contains(strings.ToLower(e.EmployeeNumber), search) ||
			strings.Contains(strings.ToLower(e.Email), search) {
			out = append(out, e)
		}
	}
	return out
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) accountForClaims(c *tokenClaims) (*account, bool) {
	if c == nil {
		return nil, false
	}
	id, err := c.userID()
	if err != nil {
		return nil, false
	}
	return s.accountByID(id)
}
