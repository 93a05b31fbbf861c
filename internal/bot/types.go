package bot

// Wire types for the bot runtime RPC surface. The runtime speaks
// JSON-encoded gRPC (see codec.go), so these are plain structs rather
// than generated code.

type helloRequest struct{}

type helloResponse struct {
	BotKey  string `json:"bot_key"`
	Version string `json:"version,omitempty"`
}

type healthRequest struct{}

type healthResponse struct {
	Status string `json:"status"`
}

type sendMessageRequest struct {
	ID   string `json:"id"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type eventsRequest struct{}

// runtimeEvent is the runtime's untranslated chat event.
type runtimeEvent struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Body      string `json:"body,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}
