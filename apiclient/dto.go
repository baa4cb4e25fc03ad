package apiclient

import "encoding/json"

// LoginRequest is the body of POST /login
type LoginRequest struct {
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

// LoginResponse carries the compact access and refresh tokens issued on login
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshRequest is the body of POST /refresh-token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// UserDto is the signed-in user's profile as served by GET /user. The
// editable fields always encode, so clearing one shows up as a change.
type UserDto struct {
	ID           string `json:"id,omitempty"`
	EmailAddress string `json:"email_address"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// UpdateUserRequest is the body of PUT /user. Changed holds only the
// top-level fields that differ from the last known server value.
type UpdateUserRequest struct {
	User    UserDto                    `json:"user"`
	Changed map[string]json.RawMessage `json:"changed"`
}

// ErrorResponse is returned by the backend alongside non-2xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
}
