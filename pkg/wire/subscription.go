package wire

import (
	"crypto/rand"
	"encoding/hex"
)

// SubscriptionId is the client-chosen string NIP-01 uses to correlate a REQ
// with the EVENT/EOSE/CLOSED messages answering it. It is also the key the
// pool's subscription registry keeps filters under, independent of which
// relays that subscription happens to be live on.
type SubscriptionId string

// NewSubscriptionId generates a random subscription id with the given label
// prefixed, mirroring the common convention of tagging ids with the call
// site that created them for easier log correlation.
func NewSubscriptionId(label string) SubscriptionId {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	id := hex.EncodeToString(buf[:])
	if label != "" {
		return SubscriptionId(label + ":" + id)
	}
	return SubscriptionId(id)
}
