package coordinator

import "github.com/gorilla/websocket"

// RejectionKind classifies why an inbound message was refused.
type RejectionKind string

const (
	// KindProtocol covers unparsable or structurally invalid frames.
	KindProtocol RejectionKind = "protocol"
	// KindPolicy covers rate and size violations; the connection is closed.
	KindPolicy RejectionKind = "policy"
	// KindAuthorization covers privileged actions from non-privileged connections.
	KindAuthorization RejectionKind = "authorization"
	// KindNotFound covers operations referencing unknown sessions.
	KindNotFound RejectionKind = "not_found"
	// KindCapacity covers session-count ceilings.
	KindCapacity RejectionKind = "capacity"
)

// Distinct close codes per policy-violation kind.
const (
	// CloseRateLimited terminates connections that exceed the message budget.
	CloseRateLimited = websocket.ClosePolicyViolation
	// CloseFrameTooLarge terminates connections that send oversized frames.
	CloseFrameTooLarge = websocket.CloseMessageTooBig
)

// Rejection is the handler-level verdict for a refused message. A zero
// CloseCode keeps the connection open and sends an ERROR reply; a non-zero
// code closes the connection without a reply.
type Rejection struct {
	Kind      RejectionKind
	Message   string
	CloseCode int
}

func (r *Rejection) Error() string {
	if r == nil {
		return ""
	}
	return string(r.Kind) + ": " + r.Message
}

func protocolErr(message string) *Rejection {
	return &Rejection{Kind: KindProtocol, Message: message}
}

func authorizationErr(message string) *Rejection {
	return &Rejection{Kind: KindAuthorization, Message: message}
}

func notFoundErr(message string) *Rejection {
	return &Rejection{Kind: KindNotFound, Message: message}
}

func capacityErr(message string) *Rejection {
	return &Rejection{Kind: KindCapacity, Message: message}
}

func policyErr(message string, closeCode int) *Rejection {
	return &Rejection{Kind: KindPolicy, Message: message, CloseCode: closeCode}
}
