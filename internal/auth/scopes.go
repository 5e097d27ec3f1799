package auth

// Known OAuth scopes used by the estimates API.
const (
	ScopeEstimatesRead = "estimates:read"
	ScopeRunsRead      = "runs:read"
)
