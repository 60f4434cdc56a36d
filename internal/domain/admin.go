package domain

// ============================================================
// Admin authentication
// ============================================================

// AdminLoginRequest is the body of POST /v1/admin/login.
type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLoginResponse carries a short-lived HS256 access token.
type AdminLoginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"` // seconds
}

// AgentReplyRequest is the body of POST /v1/tickets/{id}/messages.
type AgentReplyRequest struct {
	Text string `json:"text"`
}
