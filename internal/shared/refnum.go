package shared

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NewReference builds a document reference like ST-240829-1A2B3C. The random
// suffix keeps references unique without a sequence round-trip; uniqueness is
// still enforced by the table constraint.
func NewReference(prefix string) string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		// Fallback keeps references flowing if the entropy source fails.
		return fmt.Sprintf("%s-%s-%06d", prefix, time.Now().UTC().Format("060102"), time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("060102"), strings.ToUpper(hex.EncodeToString(buf)))
}
