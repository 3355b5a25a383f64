// Package prompt turns cached conversation history into model prompts.
package prompt

import (
	"fmt"
	"strings"

	"chatbridge/internal/history"
)

const (
	rolePlayPreamble = "你是一个角色扮演的助手，你能很好的遵循人物设定，且永远不跳出角色，始终认为自己是真实存在的人物，下面是你的角色设定：\n"

	drawInstructions = `
        OUTPUT: https://image.pollinations.ai/prompt/{英文描述}?model=Flux.Schnell&width=1024&height=1024&enhance=true)
        其中，{英文描述}=将以下内容翻译为英文:"{中文主题}"，要求保护以下元素：
        1. 主体对象：{清晰主体}
        2. 场景氛围：{氛围感关键词}
        3. 艺术风格：{风格1}+{风格2}
        4. 细节强化：{细节增强关键词}
        5. 艺术家参考：{艺术家风格}
        注意：只输出URL链接，不要添加URL外的任何字符，否则你会被关监狱！
    `
)

type Composer struct {
	Character string
	BotName   string
}

func New(character, botName string) *Composer {
	return &Composer{Character: character, BotName: botName}
}

// Chat builds the role-play prompt. The last entry of recent is the message
// being answered and is left out of the history block.
func (c *Composer) Chat(recent []history.Message, question string) string {
	var b strings.Builder
	b.WriteString(rolePlayPreamble)
	b.WriteString(c.Character)
	b.WriteString("\n\n历史消息:\n")

	if len(recent) > 0 {
		for _, m := range recent[:len(recent)-1] {
			fmt.Fprintf(&b, "[%s] 用户 %s: %s\n", m.Timestamp, m.AuthorID, m.Content)
		}
	}

	fmt.Fprintf(&b, "\n当前问题: %s\n\n请回答：", question)
	return b.String()
}

// Draw builds the instruction asking the model for an image URL.
func (c *Composer) Draw(description string) string {
	return drawInstructions + "图片描述：" + description
}

// IsImageURL reports whether a model reply looks like the URL Draw asks for.
func IsImageURL(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "http")
}
