package identifier

import (
	"strings"

	"github.com/google/uuid"
)

// New creates a random identifier with a stable prefix, e.g. prd_3f2c...
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HasPrefix reports whether id was minted by New with the given prefix.
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
