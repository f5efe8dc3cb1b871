package revocation

import (
	"fmt"
	"slices"
	"time"

	"civicdesk/pkg/platform/sentinel"
)

// validateTTL rejects entries that would expire on arrival.
func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("revocation ttl %s: %w", ttl, sentinel.ErrInvalidState)
	}
	return nil
}

func nonEmpty(jtis []string) []string {
	return slices.DeleteFunc(slices.Clone(jtis), func(jti string) bool { return jti == "" })
}
