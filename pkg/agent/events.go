package agent

// EventType tags the closed set of events an engine stream can emit.
// The orchestrator switches exhaustively over these tags; a new kind must
// be added here before any adapter may emit it.
type EventType string

const (
	EventTypeInit      EventType = "system/init"
	EventTypeAssistant EventType = "assistant"
	EventTypeSubagent  EventType = "system/subagent"
	EventTypeResult    EventType = "result"
)

// Event is one structured message from the engine stream. Exactly one of
// the payload pointers is set, matching Type.
type Event struct {
	Type      EventType
	Init      *InitEvent
	Assistant *AssistantEvent
	Subagent  *SubagentEvent
	Result    *ResultEvent
}

// InitEvent announces the engine session and the tools it may request.
type InitEvent struct {
	SessionID string
	Tools     []string
}

// BlockType tags the content blocks inside an assistant event.
type BlockType string

const (
	BlockTypeText       BlockType = "text"
	BlockTypeToolUse    BlockType = "tool_use"
	BlockTypeToolResult BlockType = "tool_result"
)

// Block is one content block of an assistant event.
type Block struct {
	Type       BlockType
	Text       string
	ToolUse    *ToolUseBlock
	ToolResult *ToolResultBlock
}

// ToolUseBlock is the engine requesting a tool invocation.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// ToolResultBlock reports the outcome of an earlier tool invocation.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// AssistantEvent carries streamed assistant content.
type AssistantEvent struct {
	Blocks []Block
}

// SubagentPhase tags subagent lifecycle events.
type SubagentPhase string

const (
	SubagentPhaseStarted  SubagentPhase = "started"
	SubagentPhaseProgress SubagentPhase = "progress"
)

// SubagentEvent reports nested-agent lifecycle. The engine supplies no
// correlation id, only the subagent type and description it was spawned
// with; consumers reconcile it against pending tool calls.
type SubagentEvent struct {
	Phase        SubagentPhase
	SubagentType string
	Description  string
	Message      string
}

// ResultSubtype distinguishes how a stream ended.
type ResultSubtype string

const (
	ResultSuccess ResultSubtype = "success"
	ResultError   ResultSubtype = "error"
)

// ResultEvent terminates a stream with usage totals.
type ResultEvent struct {
	Subtype ResultSubtype
	Error   string
	Usage   Usage
}

// Usage tracks token consumption for one turn.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TextEvent builds an assistant event holding a single text block.
func TextEvent(text string) Event {
	return Event{
		Type: EventTypeAssistant,
		Assistant: &AssistantEvent{
			Blocks: []Block{{Type: BlockTypeText, Text: text}},
		},
	}
}

// ToolUseEvent builds an assistant event holding a single tool-use block.
func ToolUseEvent(id, name string, input map[string]interface{}) Event {
	return Event{
		Type: EventTypeAssistant,
		Assistant: &AssistantEvent{
			Blocks: []Block{{
				Type:    BlockTypeToolUse,
				ToolUse: &ToolUseBlock{ID: id, Name: name, Input: input},
			}},
		},
	}
}

// ToolResultEvent builds an assistant event holding a single tool-result block.
func ToolResultEvent(toolUseID, content string, isError bool) Event {
	return Event{
		Type: EventTypeAssistant,
		Assistant: &AssistantEvent{
			Blocks: []Block{{
				Type:       BlockTypeToolResult,
				ToolResult: &ToolResultBlock{ToolUseID: toolUseID, Content: content, IsError: isError},
			}},
		},
	}
}
