package models

// Credential sources, in the order the resolver tries them
const (
	SourceAuthorizationHeader = "authorization-header"
	SourceSessionAccessToken  = "session-access-token"
	SourceSessionIDToken      = "session-id-token"
)

// RequestUser is the normalized identity for a single request. Never persisted.
type RequestUser struct {
	Sub         string         `json:"sub"`
	Name        string         `json:"name,omitempty"`
	Nickname    string         `json:"nickname,omitempty"`
	Email       string         `json:"email,omitempty"`
	Permissions []string       `json:"permissions"`
	Profile     map[string]any `json:"profile,omitempty"`
}

// HasPermission reports whether the user holds the given permission
func (u *RequestUser) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	return HasPermission(u.Permissions, permission)
}

// SessionUser is the cached profile stored in the user_info cookie
type SessionUser struct {
	Sub      string `json:"sub"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// SessionData is a logged-in browser session, stored client-side as three cookies
type SessionData struct {
	IDToken     string
	AccessToken string
	User        *SessionUser
}

// AuthResult records which credential was trusted for the request
type AuthResult struct {
	User    *RequestUser
	Token   string
	Source  string
	Session *SessionData
}

// ContributorName is how the user is credited on loos they edit
func (u *RequestUser) ContributorName() string {
	switch {
	case u.Nickname != "":
		return u.Nickname
	case u.Name != "":
		return u.Name
	default:
		return u.Sub
	}
}
