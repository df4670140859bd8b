package domain

// Session is an authenticated identity issued by the identity service.
// It is owned by the session manager and read-only everywhere else.
type Session struct {
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}
