// Package webhook signs and verifies event notifications emitted when a
// proposal or session key changes state. Signatures are HMAC-SHA256 over
// "<timestamp>.<payload>" carried in a "t=<unix>,v1=<hex>" header.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// SignatureHeader carries the webhook signature.
	SignatureHeader = "X-Custodian-Signature"

	// DefaultTolerance is the accepted clock skew in seconds.
	DefaultTolerance = 300
)

type EventType string

const (
	EventProposalCreated   EventType = "proposal.created"
	EventProposalReady     EventType = "proposal.ready"
	EventProposalExecuted  EventType = "proposal.executed"
	EventProposalFailed    EventType = "proposal.failed"
	EventProposalCancelled EventType = "proposal.cancelled"
	EventProposalExpired   EventType = "proposal.expired"

	EventSessionCreated EventType = "session.created"
	EventSessionSpend   EventType = "session.spend"
	EventSessionFrozen  EventType = "session.frozen"
	EventSessionRevoked EventType = "session.revoked"
)

var supportedEventTypes = []EventType{
	EventProposalCreated,
	EventProposalReady,
	EventProposalExecuted,
	EventProposalFailed,
	EventProposalCancelled,
	EventProposalExpired,
	EventSessionCreated,
	EventSessionSpend,
	EventSessionFrozen,
	EventSessionRevoked,
}

// Event is a webhook notification payload.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// VerificationResult reports the outcome of Verify.
type VerificationResult struct {
	Valid          bool
	TimestampValid bool
	Event          *Event
	Error          string
}

// Sign computes the signature for payload at ts and formats the header
// value. A zero ts uses the current time.
func Sign(payload, secret string, ts int64) string {
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return FormatSignature(signature(payload, secret, ts), ts)
}

// Verify checks the signature header against payload within tolerance
// seconds, then parses the event. tolerance zero means DefaultTolerance.
func Verify(payload, header, secret string, tolerance int) *VerificationResult {
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	ts, sig, ok := ParseSignature(header)
	if !ok {
		return &VerificationResult{Error: "invalid signature header"}
	}

	skew := time.Now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(tolerance) {
		return &VerificationResult{Error: "timestamp outside tolerance window"}
	}

	expected := signature(payload, secret, ts)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return &VerificationResult{
			TimestampValid: true,
			Error:          "signature mismatch",
		}
	}

	event, err := Parse(payload)
	if err != nil {
		return &VerificationResult{
			TimestampValid: true,
			Error:          err.Error(),
		}
	}

	return &VerificationResult{
		Valid:          true,
		TimestampValid: true,
		Event:          event,
	}
}

// Parse decodes and validates an event payload.
func Parse(payload string) (*Event, error) {
	event := &Event{}
	if err := json.Unmarshal([]byte(payload), event); err != nil {
		return nil, errors.Wrap(err, "invalid event payload")
	}

	if event.ID == "" || event.Type == "" {
		return nil, errors.New("event payload missing id or type")
	}
	if !IsValidEventType(event.Type) {
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}

	return event, nil
}

// IsValidEventType reports whether t is a known event type.
func IsValidEventType(t EventType) bool {
	for _, known := range supportedEventTypes {
		if known == t {
			return true
		}
	}
	return false
}

// IsProposalEvent reports whether the event concerns a proposal.
func IsProposalEvent(event *Event) bool {
	return strings.HasPrefix(string(event.Type), "proposal.")
}

// IsSessionEvent reports whether the event concerns a session key.
func IsSessionEvent(event *Event) bool {
	return strings.HasPrefix(string(event.Type), "session.")
}

// FormatSignature renders the header value.
func FormatSignature(sig string, ts int64) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, sig)
}

// ParseSignature splits a header value into timestamp and signature.
func ParseSignature(header string) (ts int64, sig string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			if _, err := fmt.Sscanf(kv[1], "%d", &ts); err != nil {
				return 0, "", false
			}
		case "v1":
			sig = kv[1]
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", false
	}
	return ts, sig, true
}

func signature(payload, secret string, ts int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.%s", ts, payload)
	return hex.EncodeToString(h.Sum(nil))
}
