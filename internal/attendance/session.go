package attendance

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionID returns the explicit ID when given, otherwise <class>_<YYYY-MM-DD>
// for a named class, otherwise a random UUID.
func SessionID(explicit, className string, now time.Time) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	if class := strings.TrimSpace(className); class != "" {
		return strings.Join(strings.Fields(class), "-") + "_" + now.Format(time.DateOnly)
	}
	return uuid.NewString()
}
