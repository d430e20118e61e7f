package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenThreadID derives a stable thread id from the platform id of the
// message that triggered creation plus the creation time. The format is
// load-bearing for archive URLs, so keep it stable.
func GenThreadID(triggerMessageID string, now time.Time) string {
	return fmt.Sprintf("%s-%d", triggerMessageID, now.Unix())
}

// GenID returns a random id for standalone records (appeal decisions).
func GenID() string {
	return uuid.NewString()
}
