package wire

import "encoding/json"

// Envelope kinds as they appear in a NIP-01 JSON array's first element.
const (
	KindEvent    = "EVENT"
	KindReq      = "REQ"
	KindClose    = "CLOSE"
	KindCloseD   = "CLOSED"
	KindEose     = "EOSE"
	KindNotice   = "NOTICE"
	KindOK       = "OK"
	KindAuth     = "AUTH"
	KindNegOpen  = "NEG-OPEN"
	KindNegMsg   = "NEG-MSG"
	KindNegClose = "NEG-CLOSE"
)

// ReqEnvelope is a client-to-relay ["REQ", sub_id, filter...] message.
type ReqEnvelope struct {
	SubscriptionId SubscriptionId
	Filters        []*Filter
}

func (r ReqEnvelope) MarshalJSON() ([]byte, error) {
	arr := make([]interface{}, 0, len(r.Filters)+2)
	arr = append(arr, KindReq, r.SubscriptionId)
	for _, f := range r.Filters {
		arr = append(arr, f)
	}
	return json.Marshal(arr)
}

// CloseEnvelope is a client-to-relay ["CLOSE", sub_id] message.
type CloseEnvelope struct {
	SubscriptionId SubscriptionId
}

func (c CloseEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{KindClose, c.SubscriptionId})
}

// EventEnvelope carries an event in either direction: client-to-relay
// publication (["EVENT", event]) or relay-to-client delivery under a
// subscription (["EVENT", sub_id, event]).
type EventEnvelope struct {
	SubscriptionId SubscriptionId // empty when this is a publish, not a delivery
	Event          *Event
}

func (e EventEnvelope) MarshalJSON() ([]byte, error) {
	if e.SubscriptionId == "" {
		return json.Marshal([2]interface{}{KindEvent, e.Event})
	}
	return json.Marshal([3]interface{}{KindEvent, e.SubscriptionId, e.Event})
}

// EoseEnvelope is a relay-to-client ["EOSE", sub_id] message.
type EoseEnvelope struct {
	SubscriptionId SubscriptionId
}

// ClosedEnvelope is a relay-to-client ["CLOSED", sub_id, reason] message.
type ClosedEnvelope struct {
	SubscriptionId SubscriptionId
	Reason         string
}

// NoticeEnvelope is a relay-to-client ["NOTICE", message] message.
type NoticeEnvelope struct {
	Message string
}

// OKEnvelope is a relay-to-client ["OK", event_id, ok, message] message.
type OKEnvelope struct {
	EventId Id
	OK      bool
	Reason  string
}

// AuthEnvelope carries either a relay-sent challenge (["AUTH", challenge])
// or a client-sent signed response (["AUTH", event]), per NIP-42.
type AuthEnvelope struct {
	Challenge string
	Event     *Event
}

func (a AuthEnvelope) MarshalJSON() ([]byte, error) {
	if a.Event != nil {
		return json.Marshal([2]interface{}{KindAuth, a.Event})
	}
	return json.Marshal([2]interface{}{KindAuth, a.Challenge})
}

// NegMsgEnvelope is a ["NEG-MSG", neg_id, message] frame carrying one round
// of a negentropy reconciliation in either direction. The message body's
// shape is the negotiation protocol's concern, not the wire layer's, so it
// is carried opaque here.
type NegMsgEnvelope struct {
	NegId   SubscriptionId
	Message json.RawMessage
}

func (n NegMsgEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{KindNegMsg, n.NegId, n.Message})
}

// ParseServerMessage sniffs the first element of a raw relay message and
// decodes it into the matching concrete envelope, returned as `interface{}`
// holding one of *EventEnvelope, *EoseEnvelope, *ClosedEnvelope,
// *NoticeEnvelope, *OKEnvelope, *AuthEnvelope, *NegMsgEnvelope.
func ParseServerMessage(raw []byte) (interface{}, error) {
	var head []json.RawMessage
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	if len(head) == 0 {
		return nil, errMalformedEnvelope
	}
	var kind string
	if err := json.Unmarshal(head[0], &kind); err != nil {
		return nil, err
	}
	switch kind {
	case KindEvent:
		if len(head) < 3 {
			return nil, errMalformedEnvelope
		}
		var subID SubscriptionId
		if err := json.Unmarshal(head[1], &subID); err != nil {
			return nil, err
		}
		ev := &Event{}
		if err := json.Unmarshal(head[2], ev); err != nil {
			return nil, err
		}
		return &EventEnvelope{SubscriptionId: subID, Event: ev}, nil
	case KindEose:
		if len(head) < 2 {
			return nil, errMalformedEnvelope
		}
		var subID SubscriptionId
		_ = json.Unmarshal(head[1], &subID)
		return &EoseEnvelope{SubscriptionId: subID}, nil
	case KindCloseD:
		if len(head) < 2 {
			return nil, errMalformedEnvelope
		}
		var subID SubscriptionId
		_ = json.Unmarshal(head[1], &subID)
		var reason string
		if len(head) >= 3 {
			_ = json.Unmarshal(head[2], &reason)
		}
		return &ClosedEnvelope{SubscriptionId: subID, Reason: reason}, nil
	case KindNotice:
		if len(head) < 2 {
			return nil, errMalformedEnvelope
		}
		var msg string
		_ = json.Unmarshal(head[1], &msg)
		return &NoticeEnvelope{Message: msg}, nil
	case KindOK:
		if len(head) < 3 {
			return nil, errMalformedEnvelope
		}
		var id Id
		var ok bool
		var reason string
		_ = json.Unmarshal(head[1], &id)
		_ = json.Unmarshal(head[2], &ok)
		if len(head) >= 4 {
			_ = json.Unmarshal(head[3], &reason)
		}
		return &OKEnvelope{EventId: id, OK: ok, Reason: reason}, nil
	case KindAuth:
		if len(head) < 2 {
			return nil, errMalformedEnvelope
		}
		var challenge string
		if err := json.Unmarshal(head[1], &challenge); err == nil {
			return &AuthEnvelope{Challenge: challenge}, nil
		}
		ev := &Event{}
		if err := json.Unmarshal(head[1], ev); err != nil {
			return nil, err
		}
		return &AuthEnvelope{Event: ev}, nil
	case KindNegMsg:
		if len(head) < 3 {
			return nil, errMalformedEnvelope
		}
		var negID SubscriptionId
		if err := json.Unmarshal(head[1], &negID); err != nil {
			return nil, err
		}
		return &NegMsgEnvelope{NegId: negID, Message: head[2]}, nil
	default:
		return nil, errUnknownEnvelopeKind
	}
}

var errMalformedEnvelope = malformedError("wire: malformed envelope")
var errUnknownEnvelopeKind = malformedError("wire: unknown envelope kind")

type malformedError string

func (e malformedError) Error() string { return string(e) }
