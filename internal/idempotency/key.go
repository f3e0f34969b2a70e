// Package idempotency derives deterministic keys that identify one logical inbound event.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BucketWidth is the time window used when a source omits a durable comment id.
// Retries of the same text within one window collapse to a single key; identical text
// re-sent in a later window is treated as a new event. This is an approximation that only
// a durable upstream event id fixes.
const BucketWidth = 10 * time.Second

// Source is the identity of an inbound comment.
type Source struct {
	Platform       string
	CommentID      string
	LiveID         string
	ActorID        string
	NormalizedText string
	Timestamp      time.Time
}

// Bucket returns floor(timestampMillis / BucketWidth).
func Bucket(ts time.Time) int64 {
	ms := ts.UnixMilli()
	width := BucketWidth.Milliseconds()
	b := ms / width
	if ms < 0 && ms%width != 0 {
		b--
	}
	return b
}

// Key returns a 64-character hex fingerprint of src.
func Key(src Source) string {
	var material string
	if src.CommentID != "" {
		material = fmt.Sprintf("%s:%s", src.Platform, src.CommentID)
	} else {
		material = fmt.Sprintf("%s:%s:%s:%s:%d", src.Platform, src.LiveID, src.ActorID, src.NormalizedText, Bucket(src.Timestamp))
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// NewOperatorKey returns a fresh key for claims that have no underlying comment.
func NewOperatorKey() string {
	return "operator:" + uuid.NewString()
}
