package prompt

import (
	"strings"
	"testing"

	"chatbridge/internal/history"

	"github.com/stretchr/testify/assert"
)

func TestChatExcludesCurrentMessage(t *testing.T) {
	c := New("一只会说话的猫", "Bot")
	recent := []history.Message{
		{AuthorID: "u1", Content: "早上好", Timestamp: "2025-02-10T08:00:00"},
		{AuthorID: "Bot", Content: "喵～早", Timestamp: "2025-02-10T08:00:02"},
		{AuthorID: "u1", Content: "今天吃什么？", Timestamp: "2025-02-10T08:01:00"},
	}

	p := c.Chat(recent, "今天吃什么？")

	assert.True(t, strings.HasPrefix(p, rolePlayPreamble+"一只会说话的猫\n\n历史消息:\n"))
	assert.Contains(t, p, "[2025-02-10T08:00:00] 用户 u1: 早上好\n")
	assert.Contains(t, p, "[2025-02-10T08:00:02] 用户 Bot: 喵～早\n")
	assert.NotContains(t, p, "[2025-02-10T08:01:00]")
	assert.True(t, strings.HasSuffix(p, "\n当前问题: 今天吃什么？\n\n请回答："))
}

func TestChatWithoutHistory(t *testing.T) {
	p := New("x", "Bot").Chat(nil, "hi")
	assert.Equal(t, rolePlayPreamble+"x\n\n历史消息:\n\n当前问题: hi\n\n请回答：", p)
}

func TestDrawAndImageURL(t *testing.T) {
	p := New("", "").Draw("夕阳下的猫")
	assert.Contains(t, p, "image.pollinations.ai")
	assert.True(t, strings.HasSuffix(p, "图片描述：夕阳下的猫"))

	assert.True(t, IsImageURL(" https://image.pollinations.ai/prompt/cat"))
	assert.False(t, IsImageURL("抱歉"))
}
