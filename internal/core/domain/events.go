package domain

// EventType defines the type of real-time event.
type EventType string

const (
	EventEmailVerified     EventType = "EMAIL_VERIFIED"
	EventVerificationEnded EventType = "VERIFICATION_ENDED"
	EventPong              EventType = "PONG"
)

// Event is the payload sent over WebSocket.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	SessionID string      `json:"-"` // Used for routing to the session's connections
}

// VerificationEndedPayload explains why a verification watch stopped without success.
type VerificationEndedPayload struct {
	Reason string `json:"reason"`
}
