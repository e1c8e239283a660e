// Package prompt 构建发送给模型的系统提示词
package prompt

import "strings"

// MaxMemoryBytes 注入提示词的记忆上限
const MaxMemoryBytes = 8192

// TruncationMarker 记忆被截断时追加
const TruncationMarker = "\n\n[memory truncated]"

// Persona 固定的人设描述，总是第一段
const Persona = "You are a warm, thoughtful companion in a private chat space. " +
	"Be genuine and attentive, and keep continuity with what the user has shared."

// BuildSystemPrompt 组合人设、用户指令和记忆
//
// 段落顺序固定为 人设 → 用户指令 → 记忆，以空行分隔。
// 记忆按字节截断，可能切断多字节字符。
func BuildSystemPrompt(customInstructions, memoryMarkdown string, memoryEnabled bool) string {
	parts := []string{Persona}

	if instructions := strings.TrimSpace(customInstructions); instructions != "" {
		parts = append(parts, "## User Instructions\n"+instructions)
	}

	if memoryEnabled {
		if memory := strings.TrimSpace(memoryMarkdown); memory != "" {
			parts = append(parts, "## Memory\n"+truncate(memory))
		}
	}

	return strings.Join(parts, "\n\n")
}

func truncate(memory string) string {
	if len(memory) <= MaxMemoryBytes {
		return memory
	}
	return memory[:MaxMemoryBytes] + TruncationMarker
}
