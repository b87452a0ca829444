// Package ids mints the identifiers used for runs, suite executions and
// stored result records.
package ids

import (
	"crypto/rand"
	"strconv"
	"time"
)

const (
	// RunPrefix prefixes ids shared by every suite launched in one batch.
	RunPrefix = "run"

	// SuiteRunPrefix prefixes ids of a single suite execution.
	SuiteRunPrefix = "suite"

	// TestResultPrefix prefixes ids of stored result records.
	TestResultPrefix = "result"

	// InstancePrefix prefixes ids identifying one store instance attached
	// to a shared backend.
	InstancePrefix = "tab"

	suffixLen = 9
	alphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewRunID returns a fresh run id.
func NewRunID() string {
	return generate(RunPrefix)
}

// NewSuiteRunID returns a fresh suite execution id.
func NewSuiteRunID() string {
	return generate(SuiteRunPrefix)
}

// NewTestResultID returns a fresh result record id.
func NewTestResultID() string {
	return generate(TestResultPrefix)
}

// NewInstanceID returns a fresh store instance id.
func NewInstanceID() string {
	return generate(InstancePrefix)
}

// generate builds <prefix>_<base36 unix millis>_<random base36 suffix>.
// Uniqueness comes from the random suffix; ids minted within the same
// millisecond carry no ordering guarantee.
func generate(prefix string) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)

	return prefix + "_" + ts + "_" + randomSuffix()
}

func randomSuffix() string {
	b := make([]byte, suffixLen)
	if _, err := rand.Read(b); err != nil {
		// Fallback to the nanosecond clock if crypto/rand fails.
		s := strconv.FormatInt(time.Now().UnixNano(), 36)
		if len(s) > suffixLen {
			s = s[len(s)-suffixLen:]
		}

		return s
	}

	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}

	return string(b)
}
