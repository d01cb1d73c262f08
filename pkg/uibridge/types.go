package uibridge

// EventMessage is a broadcast frame pushed to every connected UI client.
type EventMessage struct {
	Type      string      `json:"type"` // always "event"
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"`
}

// PromptMessage is a frame that requires a user decision. The client answers
// with a ResponseMessage carrying the same id.
type PromptMessage struct {
	Type      string      `json:"type"` // always "prompt"
	ID        string      `json:"id"`
	Kind      string      `json:"kind"` // "approval" or "limit"
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// ResponseMessage is the client's answer to a prompt.
type ResponseMessage struct {
	Type   string `json:"type"` // "response"
	ID     string `json:"id"`
	Action string `json:"action,omitempty"` // approval prompts
	Choice string `json:"choice,omitempty"` // limit prompts
}

// inboundMessage is the superset of frames a client may send.
type inboundMessage struct {
	Type   string `json:"type"` // "response", "message", "cancel"
	ID     string `json:"id,omitempty"`
	Action string `json:"action,omitempty"`
	Choice string `json:"choice,omitempty"`
	Text   string `json:"text,omitempty"`
}

const (
	promptKindApproval = "approval"
	promptKindLimit    = "limit"
)
