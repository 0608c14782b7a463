// Package wire holds the minimal Nostr data model the pool operates on:
// events, filters, tags and the subscription identifiers used to correlate
// a REQ with the EVENT/EOSE/CLOSED messages that answer it.
//
// Signing, event-id derivation and full NIP-01 text-escaping are out of
// scope here — those are the concern of whatever produces an EventId before
// it reaches the pool, or of the EventStore on insert. Events are plain,
// JSON-tagged structs; the only custom encoding is Filter's "#x" tag keys,
// the envelopes' JSON-array forms, and ParseServerMessage's decoding of
// relay messages.
package wire

import (
	"encoding/json"
	"strconv"
	"time"
)

// Id is a lowercase-hex event id, 32 bytes represented as 64 hex characters.
type Id string

// Timestamp is a Unix timestamp in seconds, as used throughout NIP-01.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp { return Timestamp(time.Now().Unix()) }

func (t Timestamp) Time() time.Time { return time.Unix(int64(t), 0) }

// Tag is a single Nostr tag: an ordered list of strings, first of which is
// the tag name ("e", "p", "a", ...).
type Tag []string

// Key returns the tag's first element, or "" for an empty tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the tag's second element, or "" if absent.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Tags is an ordered collection of Tag.
type Tags []Tag

// ContainsAny reports whether any tag with the given key has one of the
// given values in its Value position.
func (tt Tags) ContainsAny(key string, values []string) bool {
	for _, t := range tt {
		if t.Key() != key {
			continue
		}
		v := t.Value()
		for _, want := range values {
			if v == want {
				return true
			}
		}
	}
	return false
}

// Event is a signed Nostr event as received from, or sent to, a relay.
// The pool never computes Id or Sig: it treats both as opaque fields
// supplied by the caller (or by a relay, on receipt).
type Event struct {
	ID        Id        `json:"id"`
	PubKey    string    `json:"pubkey"`
	CreatedAt Timestamp `json:"created_at"`
	Kind      int       `json:"kind"`
	Tags      Tags      `json:"tags"`
	Content   string    `json:"content"`
	Sig       string    `json:"sig"`
}

// IsReplaceable reports whether this event's kind follows NIP-01 replaceable
// semantics (10000-19999, plus 0 and 3) where only the latest event per
// (pubkey, kind) should be retained.
func (e *Event) IsReplaceable() bool {
	return e.Kind == 0 || e.Kind == 3 || (e.Kind >= 10000 && e.Kind < 20000)
}

// IsParameterizedReplaceable reports whether this event's kind follows
// NIP-01 parameterized-replaceable semantics (30000-39999), where the "d"
// tag value also participates in the replacement key.
func (e *Event) IsParameterizedReplaceable() bool {
	return e.Kind >= 30000 && e.Kind < 40000
}

// DTag returns the value of this event's "d" tag, or "" if it has none.
func (e *Event) DTag() string {
	for _, t := range e.Tags {
		if t.Key() == "d" {
			return t.Value()
		}
	}
	return ""
}

// String implements fmt.Stringer for concise logging.
func (e *Event) String() string {
	if e == nil {
		return "<nil event>"
	}
	id := string(e.ID)
	if len(id) > 8 {
		id = id[:8]
	}
	return "event(" + id + " kind=" + strconv.Itoa(e.Kind) + ")"
}

// Marshal encodes the event as minified JSON.
func (e *Event) Marshal() ([]byte, error) { return json.Marshal(e) }

// Unmarshal decodes an event from JSON.
func (e *Event) Unmarshal(b []byte) error { return json.Unmarshal(b, e) }

// CountLeadingZeroBits returns the number of leading zero bits in id's hex
// representation, the NIP-13 proof-of-work measure of an event id.
func CountLeadingZeroBits(id Id) int {
	bits := 0
	for _, c := range string(id) {
		var nibble int
		switch {
		case c >= '0' && c <= '9':
			nibble = int(c - '0')
		case c >= 'a' && c <= 'f':
			nibble = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			nibble = int(c-'A') + 10
		default:
			return bits
		}
		if nibble == 0 {
			bits += 4
			continue
		}
		for mask := 8; mask > 0; mask >>= 1 {
			if nibble&mask != 0 {
				return bits
			}
			bits++
		}
	}
	return bits
}
