package worker

import "strings"

// Class splits processing errors into those worth retrying and those
// that will never succeed.
type Class string

const (
	ClassTransient Class = "transient"
	ClassPermanent Class = "permanent"
)

// Substring tables, matched case-insensitively against the error text.
// Permanent patterns win over transient ones; anything unmatched is
// treated as transient so unknown faults get the benefit of a retry.
var (
	permanentPatterns = []string{
		"invalid file",
		"unsupported format",
		"corrupt",
		"validation failed",
		"not found",
		"permission denied",
	}

	transientPatterns = []string{
		"network",
		"timeout",
		"rate limit",
		"too many requests",
		"connection",
		"temporarily unavailable",
	}
)

// Classify decides whether err is worth retrying. A nil error is
// classified permanent: there is nothing sensible to retry.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range permanentPatterns {
		if strings.Contains(msg, pattern) {
			return ClassPermanent
		}
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return ClassTransient
		}
	}
	return ClassTransient
}
