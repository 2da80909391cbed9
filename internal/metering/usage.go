package metering

import (
	"bytes"
	"time"

	"github.com/bytedance/sonic"

	"claude_gateway/internal/models"
)

// Attribution identifies the bucket a proxied call is metered against.
type Attribution struct {
	UserID       string
	ChatID       string
	ModelID      string
	IsEvaluation bool
}

func (a Attribution) messageCount() int64 {
	if a.IsEvaluation {
		return 0
	}
	return 1
}

var dataPrefix = []byte("data: ")

type tokenUsage struct {
	InputTokens  *int64 `json:"input_tokens"`
	OutputTokens *int64 `json:"output_tokens"`
}

type streamFrame struct {
	Message *struct {
		Usage *tokenUsage `json:"usage"`
	} `json:"message"`
	Usage *tokenUsage `json:"usage"`
}

// ParseFrame inspects one event-stream line. A message-start frame yields an
// input event, a frame with top-level usage yields an output event. Any
// other line, including undecodable data, yields nil.
func ParseFrame(line []byte, attr Attribution, now time.Time) *models.UsageEvent {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || payload[0] != '{' {
		return nil
	}

	var frame streamFrame
	if err := sonic.Unmarshal(payload, &frame); err != nil {
		return nil
	}

	switch {
	case frame.Message != nil:
		if frame.Message.Usage == nil || frame.Message.Usage.InputTokens == nil {
			return nil
		}
		ev := models.NewUsageEvent(attr.UserID, attr.ChatID, attr.ModelID, now)
		ev.InputTokens = *frame.Message.Usage.InputTokens
		ev.MessageCount = attr.messageCount()
		return ev
	case frame.Usage != nil && frame.Usage.OutputTokens != nil:
		ev := models.NewUsageEvent(attr.UserID, attr.ChatID, attr.ModelID, now)
		ev.OutputTokens = *frame.Usage.OutputTokens
		return ev
	}
	return nil
}

// ExtractUsage reads the usage block of a buffered response. It returns nil
// when the body has no usage.
func ExtractUsage(body []byte, attr Attribution, now time.Time) *models.UsageEvent {
	var response struct {
		Usage *tokenUsage `json:"usage"`
	}
	if err := sonic.Unmarshal(body, &response); err != nil || response.Usage == nil {
		return nil
	}
	if response.Usage.InputTokens == nil && response.Usage.OutputTokens == nil {
		return nil
	}

	ev := models.NewUsageEvent(attr.UserID, attr.ChatID, attr.ModelID, now)
	if response.Usage.InputTokens != nil {
		ev.InputTokens = *response.Usage.InputTokens
	}
	if response.Usage.OutputTokens != nil {
		ev.OutputTokens = *response.Usage.OutputTokens
	}
	ev.MessageCount = attr.messageCount()
	return ev
}
