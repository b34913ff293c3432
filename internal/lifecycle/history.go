package lifecycle

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/besikta/inspection-server/internal/models"
)

// timestamps are kept at the precision postgres stores so hashes survive a
// round trip
const historyPrecision = time.Microsecond

// appendEntry returns a new history with e appended. The entry's timestamp is
// moved forward when it does not strictly follow the previous one, and the
// entry is chained to its predecessor by hash. The input slice is not
// modified.
func appendEntry(history []models.StatusEntry, e models.StatusEntry) ([]models.StatusEntry, models.StatusEntry) {
	e.Timestamp = e.Timestamp.UTC().Truncate(historyPrecision)
	e.PrevHash = ""
	if n := len(history); n > 0 {
		last := history[n-1]
		if !e.Timestamp.After(last.Timestamp) {
			e.Timestamp = last.Timestamp.Add(historyPrecision)
		}
		e.PrevHash = last.Hash
	}
	e.Hash = EntryHash(e.PrevHash, e)

	out := make([]models.StatusEntry, len(history), len(history)+1)
	copy(out, history)
	return append(out, e), e
}

// EntryHash computes the chain hash of an entry given its predecessor's hash.
func EntryHash(prevHash string, e models.StatusEntry) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		prevHash, e.Status, e.Timestamp.UTC().Format(time.RFC3339Nano), e.ChangedBy, e.ChangedByName, e.Reason)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// ErrHistoryCorrupt is wrapped by every VerifyHistory failure.
var ErrHistoryCorrupt = errors.New("status history corrupt")

// VerifyHistory checks ordering and the hash chain of a stored history.
func VerifyHistory(history []models.StatusEntry) error {
	prev := ""
	for i, e := range history {
		if i > 0 && !e.Timestamp.After(history[i-1].Timestamp) {
			return fmt.Errorf("%w: entry %d: timestamp %s does not follow %s", ErrHistoryCorrupt, i, e.Timestamp, history[i-1].Timestamp)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d: broken chain", ErrHistoryCorrupt, i)
		}
		if EntryHash(prev, e) != e.Hash {
			return fmt.Errorf("%w: entry %d: hash mismatch", ErrHistoryCorrupt, i)
		}
		prev = e.Hash
	}
	return nil
}
