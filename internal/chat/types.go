package chat

// Inbound is a message received from the messaging platform.
type Inbound struct {
	ConversationID string
	AuthorID       string
	Text           string
	Attachments    []any
}

// Reply is what the transport should send back.
type Reply struct {
	Text     string
	ImageURL string
}

const (
	FallbackReply     = "抱歉，无法生成回复。"
	DrawFallbackReply = "抱歉，无法生成图片。"
	DrawResultText    = "画图结果"
)
