package utils

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var idSeq uint64

// GenMessageID returns a sortable message id derived from the current time
// plus a process-local sequence to break nanosecond ties.
func GenMessageID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("msg-%d-%d", n, s)
}

// GenConversationID returns a new conversation id.
func GenConversationID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("conv-%d-%d", n, s)
}

// GenEmbedID returns a new embed config id.
func GenEmbedID() string { return "emb-" + uuid.NewString() }

// GenTourID returns a new tour id.
func GenTourID() string { return "tour-" + uuid.NewString() }

// GenSessionID returns a new widget session id.
func GenSessionID() string { return "ws-" + uuid.NewString() }

// GenFeedbackID returns a new feedback record id.
func GenFeedbackID() string { return "fb-" + uuid.NewString() }

// PairKey builds the deterministic lookup key for a two-party conversation:
// the participant ids sorted lexically and joined. Both participants resolve
// to the same key regardless of call order, so concurrent find-or-create
// calls land on the same index entry.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// Preview truncates a message body rendering for conversation previews.
// The cut lands on a rune boundary so multibyte text stays valid UTF-8.
func Preview(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
