package session

import (
	"fmt"
	"os"
	"strings"
)

// Environment selectors for the session backend.
const (
	EnvShortTermMemory = "AGENT_SHORT_TERM_MEMORY"
	EnvSessionStoreURI = "AGENT_SESSION_STORE_URI"
)

// FromEnv builds the session store the environment asks for:
// AGENT_SHORT_TERM_MEMORY=Database selects the Postgres checkpointer at
// AGENT_SESSION_STORE_URI; anything else is in-memory.
func FromEnv() (Store, error) {
	if strings.EqualFold(os.Getenv(EnvShortTermMemory), "database") {
		dsn := os.Getenv(EnvSessionStoreURI)
		if dsn == "" {
			return nil, fmt.Errorf("%s=Database requires %s", EnvShortTermMemory, EnvSessionStoreURI)
		}
		return NewPostgresStore(dsn), nil
	}
	return NewMemoryStore(), nil
}
