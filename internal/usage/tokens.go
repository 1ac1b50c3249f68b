package usage

import "github.com/tanaikit/pool2api/internal/translator"

// EstimateInputTokens approximates the prompt token count when the upstream
// reports none. Four characters per token tracks the Claude-family tokenizers
// closely enough for accounting fallback.
func EstimateInputTokens(req *translator.ChatRequest) int64 {
	chars := len(req.System)
	for _, turn := range req.Turns {
		for _, part := range turn.Parts {
			chars += len(part.Text) + len(part.ToolInput) + len(part.Result)
		}
	}
	for _, tool := range req.Tools {
		chars += len(tool.Name) + len(tool.Description) + len(tool.InputSchema)
	}
	if chars == 0 {
		return 0
	}
	tokens := int64(chars / 4)
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
