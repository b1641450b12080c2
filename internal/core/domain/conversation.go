package domain

import "time"

// MaxHistoryTurns bounds the rolling history handed to the query rewriter.
const MaxHistoryTurns = 4

// Session is per-conversation state. It is never shared across sessions.
type Session struct {
	ID            string             `json:"id"`
	ClientIP      string             `json:"client_ip,omitempty"`
	WaitingForURL bool               `json:"waiting_for_url"`
	LastRewritten string             `json:"last_rewritten,omitempty"`
	History       []ConversationTurn `json:"history"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// AppendHistory records a turn and keeps only the most recent MaxHistoryTurns entries.
func (s *Session) AppendHistory(turns ...ConversationTurn) {
	s.History = append(s.History, turns...)
	if len(s.History) > MaxHistoryTurns {
		s.History = append([]ConversationTurn(nil), s.History[len(s.History)-MaxHistoryTurns:]...)
	}
}

type Command string

const (
	CommandNone                 Command = ""
	CommandUploadImage          Command = "upload_image"
	CommandAnalyzeURL           Command = "analyze_url"
	CommandDeconstructElements  Command = "deconstruct_elements_tool"
	CommandHybridSearch         Command = "hybrid_search"
	CommandLongContextRetrieval Command = "long_context_retrieval"
)

// CommandInfo describes a command for the chat layer's command palette.
type CommandInfo struct {
	ID          Command `json:"id"`
	Icon        string  `json:"icon"`
	Description string  `json:"description"`
}

func Commands() []CommandInfo {
	return []CommandInfo{
		{ID: CommandUploadImage, Icon: "upload", Description: "Upload an image for analysis"},
		{ID: CommandAnalyzeURL, Icon: "link", Description: "Analyze image from URL"},
		{ID: CommandDeconstructElements, Icon: "search", Description: "Access tool functionalities"},
		{ID: CommandHybridSearch, Icon: "layers", Description: "Perform a hybrid search"},
		{ID: CommandLongContextRetrieval, Icon: "list", Description: "Retrieve 150, rerank, show top 20"},
	}
}

func ParseCommand(raw string) (Command, bool) {
	if raw == "" {
		return CommandNone, true
	}
	for _, info := range Commands() {
		if string(info.ID) == raw {
			return info.ID, true
		}
	}
	return CommandNone, false
}

// ImageUpload is an image delivered with a turn.
type ImageUpload struct {
	Filename string
	Data     []byte
}

type TurnRequest struct {
	SessionID string
	Text      string
	Command   Command
	Images    []ImageUpload
}

// DisplayBlock is one chat message handed to the presentation layer.
type DisplayBlock struct {
	Text      string   `json:"text"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

type TurnResponse struct {
	SessionID string         `json:"session_id"`
	Mode      string         `json:"mode"`
	Blocks    []DisplayBlock `json:"blocks"`
	Stats     TurnStats      `json:"-"`
}

// TurnStats records how each pipeline stage behaved during a turn.
type TurnStats struct {
	SourceWebsite   string
	RewrittenQuery  string
	RewriteFallback bool
	Facets          []Facet
	DroppedFilters  int
	SearchFailed    bool
	ResultCount     int
	RerankFallback  bool
	DescribeFailed  bool
}

// Turn modes, used for metrics and transcript metadata.
const (
	ModeText        = "text"
	ModeImageURL    = "image_url"
	ModeImageUpload = "image_upload"
	ModeTools       = "tools"
	ModeHybrid      = "hybrid"
	ModeLongContext = "long_context"
	ModePrompt      = "prompt"
)

// TranscriptEntry is one persisted exchange of the chat transcript log.
type TranscriptEntry struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	ClientIP    string         `json:"client_ip,omitempty"`
	UserMessage string         `json:"user_message"`
	AIResponse  string         `json:"ai_response"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// WelcomeMessage opens every new session.
const WelcomeMessage = "**Welcome to the Data Visualization Search App!**\n\n" +
	"I can help you find visualizations from sources like Datawrapper and TidyTuesday.\n\n" +
	"**Here's how you can search:**\n" +
	"- **Describe a chart**: type what you're looking for. The more specific, the better!\n" +
	"  - *Example:* `Find scatter plots with a dark background and a blue color scheme.`\n" +
	"- **Use an image**: upload an image or paste an image URL to find similar visualizations.\n" +
	"- **Filter by source**: mention `flowingdata`, `ggplot2`, or `datawrapper` in your query.\n" +
	"  - *Example:* `Show me bar charts from flowingdata.`\n" +
	"- **Use commands**: advanced options like `Hybrid Search` and `Long Context Retrieval`."
