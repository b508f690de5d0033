package mcp

import (
	"context"
	"os"
)

// EnvDefaultUserID is the fallback owner for tool calls made outside a chat
// request, such as discovery tooling.
const EnvDefaultUserID = "MCP_DEFAULT_USER_ID"

type userIDKey struct{}

// WithUserID attaches the requesting user's id to the context. The HTTP
// transport uses it to key token lookups.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the context's user id, falling back to
// MCP_DEFAULT_USER_ID when none was attached.
func UserIDFrom(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey{}).(string); ok && userID != "" {
		return userID
	}
	return os.Getenv(EnvDefaultUserID)
}
