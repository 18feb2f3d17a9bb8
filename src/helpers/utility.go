package helpers

import "github.com/google/uuid"

// GenerateUUID generates a random identifier, used by the demo CLI to
// name a per-run index file when no explicit name is given.
func GenerateUUID() string {
	return uuid.New().String()
}
