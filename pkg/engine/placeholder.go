package engine

import (
	"strings"

	"github.com/google/uuid"
)

// userIDArg is the tool argument the placeholder rule applies to.
const userIDArg = "user_id"

// placeholderUserIDValues are the literal placeholders LLMs echo back from
// tool schemas instead of the concrete id.
var placeholderUserIDValues = map[string]bool{
	"user_id":      true,
	"<user_id>":    true,
	"{user_id}":    true,
	"${user_id}":   true,
	"user id":      true,
	"your_user_id": true,
	"the_user_id":  true,
}

// placeholderUserIDPhrases match instruction-like values such as "the
// exact user id from input".
var placeholderUserIDPhrases = []string{
	"user id from input",
	"exact user id",
	"the user's id",
	"current user id",
	"requesting user",
}

// IsPlaceholderUserID reports whether value looks like a schema
// placeholder rather than a real user id. Real UUIDv4 values are never
// placeholders; other arbitrary strings are left alone unless they match
// a known pattern.
func IsPlaceholderUserID(value string) bool {
	if isUUIDv4(value) {
		return false
	}

	normalized := strings.ToLower(strings.TrimSpace(value))
	if placeholderUserIDValues[normalized] {
		return true
	}
	for _, phrase := range placeholderUserIDPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

func isUUIDv4(value string) bool {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return false
	}
	return parsed.Version() == 4
}

// RewriteUserIDPlaceholder replaces a placeholder user_id argument with
// the request context's id, in place. Returns true when a rewrite
// happened. Applied before both the tool_call emission and the
// invocation.
func RewriteUserIDPlaceholder(args map[string]any, contextUserID string) bool {
	if args == nil || contextUserID == "" {
		return false
	}
	value, ok := args[userIDArg].(string)
	if !ok {
		return false
	}
	if !IsPlaceholderUserID(value) {
		return false
	}
	args[userIDArg] = contextUserID
	return true
}
