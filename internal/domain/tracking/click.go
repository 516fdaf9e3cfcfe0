package tracking

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"strings"
	"time"
)

// ClickIDPrefix is the fixed, recognizable prefix carried by every click id.
// Identifiers without it are rejected before any store lookup.
const ClickIDPrefix = "dep"

// AttributionWindow is the maximum elapsed time between a referral click and
// an accepted conversion. A conversion at exactly the boundary is still valid.
const AttributionWindow = 90 * 24 * time.Hour

// ClickTTL is the retention of click records. It must cover at least the
// attribution window.
const ClickTTL = AttributionWindow

// ClickRecord is the durable record of an outbound referral click, stored
// under click:{id} and immutable once written.
type ClickRecord struct {
	ClickID   string            `json:"click_id"`
	PartnerID string            `json:"partner_id"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewClickID generates a click identifier of the form
// {prefix}_{base36 ms timestamp}_{base36 random}. The time component keeps ids
// roughly sortable; the random component makes collisions astronomically
// unlikely without coordination.
func NewClickID(now time.Time) string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to the
		// nanosecond clock so click recording keeps working.
		binary.BigEndian.PutUint64(buf[:], uint64(now.UnixNano()))
	}
	random := binary.BigEndian.Uint64(buf[:])

	return ClickIDPrefix + "_" +
		strconv.FormatInt(now.UnixMilli(), 36) + "_" +
		strconv.FormatUint(random, 36)
}

// IsValidClickID reports whether an identifier carries the fixed prefix.
// Malformed or foreign identifiers fail this check and are rejected without
// touching the store.
func IsValidClickID(id string) bool {
	return strings.HasPrefix(id, ClickIDPrefix+"_") && len(id) > len(ClickIDPrefix)+1
}

// WithinAttributionWindow reports whether a click is still attributable at
// the given instant. The boundary comparison is a strict greater-than:
// exactly AttributionWindow elapsed is still valid.
func (c *ClickRecord) WithinAttributionWindow(now time.Time) bool {
	return now.Sub(c.Timestamp) <= AttributionWindow
}

// ClickKey returns the KV key for a click record
func ClickKey(clickID string) string {
	return "click:" + clickID
}
