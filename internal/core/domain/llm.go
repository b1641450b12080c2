package domain

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string
	Content string
}

// ToolSpec is a callable function offered to the model. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a function invocation requested by the model. Arguments is raw JSON.
type ToolCall struct {
	Name      string
	Arguments string
}

type CompletionRequest struct {
	Messages    []ChatMessage
	Tools       []ToolSpec
	ToolChoice  string
	Temperature float32
	MaxTokens   int
}

type Completion struct {
	Text      string
	ToolCalls []ToolCall
}
