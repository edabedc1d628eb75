package provider

import "finch/pkg/models"

// maxInlineImageBytes is the conservative per-provider inline-image byte
// limit spec §4.4 names ("≈3 MB raw").
const maxInlineImageBytes = 3 * 1024 * 1024

// charsPerTokenEstimate and perMessageOverheadTokens implement spec
// §4.4's token-cost heuristic: "3 chars per token, +4 per-message
// overhead".
const (
	charsPerTokenEstimate    = 3
	perMessageOverheadTokens = 4
)

// Sanitize removes trailing assistant tool-use blocks that lack a
// matching tool-result in the following message, and replaces
// oversized inline images with a text placeholder (spec §4.4 "Request
// sanitization"). It returns a new slice; req.Messages is not mutated
// in place.
func Sanitize(messages []models.Message) []models.Message {
	out := dropTrailingOrphanToolUse(messages)
	return redactOversizedImages(out)
}

// dropTrailingOrphanToolUse iteratively strips a trailing assistant
// message whose tool-use blocks have no matching tool-result in the
// message that follows (or which has no follow-up message at all).
func dropTrailingOrphanToolUse(messages []models.Message) []models.Message {
	out := append([]models.Message(nil), messages...)
	for {
		n := len(out)
		if n == 0 || out[n-1].Role != models.RoleAssistant || !out[n-1].HasToolUse() {
			return out
		}
		out = out[:n-1]
	}
}

func redactOversizedImages(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		content := make([]models.ContentBlock, len(msg.Content))
		for j, b := range msg.Content {
			if b.Type == models.BlockImage && b.Image != nil && len(b.Image.Data) > maxInlineImageBytes {
				content[j] = models.Text("[image omitted: exceeds size limit]")
				continue
			}
			content[j] = b
		}
		out[i] = models.Message{Role: msg.Role, Content: content}
	}
	return out
}

// estimateTokens applies the 3-chars-per-token heuristic plus a fixed
// per-message overhead to a message's text content.
func estimateTokens(msg models.Message) int {
	chars := 0
	for _, b := range msg.Content {
		switch b.Type {
		case models.BlockText:
			chars += len(b.Text)
		case models.BlockToolUse:
			if b.ToolUse != nil {
				chars += len(b.ToolUse.Input)
			}
		case models.BlockToolResult:
			if b.ToolResult != nil {
				chars += len(b.ToolResult.Content)
			}
		}
	}
	return chars/charsPerTokenEstimate + perMessageOverheadTokens
}

// Truncate drops the oldest messages until the remaining set's
// estimated token cost fits within tokenLimit minus systemTokens and
// maxTokens (the response reservation), per spec §4.4 "Context-budget
// truncation". At least the most recent message is always preserved.
// After dropping, an orphaned head (a user message of only tool-result
// blocks, and the assistant reply immediately following it) is also
// discarded.
func Truncate(messages []models.Message, tokenLimit, systemTokens, maxTokens int) []models.Message {
	budget := tokenLimit - systemTokens - maxTokens
	if budget < 0 {
		budget = 0
	}

	out := append([]models.Message(nil), messages...)
	total := 0
	for _, m := range out {
		total += estimateTokens(m)
	}

	for len(out) > 1 && total > budget {
		total -= estimateTokens(out[0])
		out = out[1:]
	}

	return dropOrphanedHead(out)
}

func dropOrphanedHead(messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return messages
	}
	if messages[0].Role != models.RoleUser || !isAllToolResults(messages[0]) {
		return messages
	}
	if len(messages) > 1 && messages[1].Role == models.RoleAssistant {
		return messages[2:]
	}
	return messages[1:]
}

func isAllToolResults(msg models.Message) bool {
	if len(msg.Content) == 0 {
		return false
	}
	for _, b := range msg.Content {
		if b.Type != models.BlockToolResult {
			return false
		}
	}
	return true
}
