package workflow

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/books_ledger/models"
)

// LedgerError is a recoverable generation problem: the fact that raised it is skipped
// and the message is reported to the caller. Any other error aborts the whole charge.
type LedgerError struct {
	Message string
}

func (e *LedgerError) Error() string { return e.Message }

func ledgerErrorf(format string, args ...any) *LedgerError {
	return &LedgerError{Message: fmt.Sprintf(format, args...)}
}

func IsLedgerError(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}

// EntriesResult is what every generator returns: the entries it could build plus the
// recoverable problems it ran into.
type EntriesResult struct {
	Entries []models.LedgerEntryProto
	Errors  []string
}

func entriesOf(entries ...models.LedgerEntryProto) EntriesResult {
	return EntriesResult{Entries: entries}
}

func (r *EntriesResult) merge(other EntriesResult) {
	r.Entries = append(r.Entries, other.Entries...)
	r.Errors = append(r.Errors, other.Errors...)
}

func (r *EntriesResult) addError(err *LedgerError) {
	r.Errors = append(r.Errors, err.Message)
}

// absorb turns a LedgerError into a result message and passes anything else through as fatal.
func absorb(err error) (EntriesResult, error) {
	var le *LedgerError
	if errors.As(err, &le) {
		return EntriesResult{Errors: []string{le.Message}}, nil
	}
	return EntriesResult{}, err
}

// dedupeErrors keeps the first occurrence of each message.
func dedupeErrors(messages []string) []string {
	seen := make(map[string]struct{}, len(messages))
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
