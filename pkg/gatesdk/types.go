package gatesdk

// ============================================================================
// Device Authorization Flow
// ============================================================================

// DeviceCodeRequest is the payload for starting a device authorization grant.
type DeviceCodeRequest struct {
	// Scope is an optional space-delimited list of scopes to request.
	// Defaults to "llm:chat" when empty.
	Scope string `json:"scope,omitempty"`
}

// DeviceCodeResponse is returned when a device authorization grant is created.
// Field names follow RFC 8628 section 3.2.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

// GrantSummary describes a pending grant to the approving user. It carries no
// device code, only what the approver needs to make a decision.
type GrantSummary struct {
	UserCode  string   `json:"user_code"`
	Scopes    []string `json:"scopes"`
	Status    string   `json:"status"`
	ExpiresIn int64    `json:"expires_in"`
}

// DeviceTokenRequest is the polling payload for the token endpoint.
type DeviceTokenRequest struct {
	DeviceCode string `json:"device_code"`
}

// TokenResponse is returned when a device grant is exchanged for an access
// token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// RevokeRequest is the payload for revoking an access token.
type RevokeRequest struct {
	Token string `json:"token"`
}

// ============================================================================
// Chat Completions
// ============================================================================

// ChatMessage is a single message in a chat completion request or response.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body relayed to the upstream model
// provider. Unknown fields are passed through untouched by the gateway, so
// this type only names the fields the gateway itself inspects.
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// ChatCompletionChoice is one completion choice in an upstream response.
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// Usage is the upstream-reported token accounting for a completion.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatCompletionResponse is a buffered (non-streaming) completion response.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *Usage                 `json:"usage,omitempty"`
}

// ============================================================================
// Usage and Balance
// ============================================================================

// BalanceResponse reports the caller's remaining credit balance.
type BalanceResponse struct {
	SubjectID string `json:"subject_id"`
	Balance   int64  `json:"balance"`
}

// LedgerEntry is one append-only usage record. BalanceAfter snapshots the
// balance right after the entry's debit, so consecutive entries form a
// running total.
type LedgerEntry struct {
	ID           string `json:"id"`
	SubjectID    string `json:"subject_id"`
	Units        int64  `json:"units"`
	Cost         int64  `json:"cost"`
	BalanceAfter int64  `json:"balance_after"`
	Source       string `json:"source"`
	OccurredAt   int64  `json:"occurred_at"`
}

// UsageResponse is a page of the caller's usage ledger, newest first.
type UsageResponse struct {
	Entries []LedgerEntry `json:"entries"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each critical dependency.
type HealthChecks struct {
	Database string `json:"database,omitempty"`
	Signer   string `json:"signer,omitempty"`
	Revoker  string `json:"revoker,omitempty"`
	Upstream string `json:"upstream,omitempty"`
}
