package relay

import (
	"encoding/json"
	"log/slog"

	"computeruse-backend/internal/agent"
	"computeruse-backend/internal/models"
)

func agentMessage(text string) models.OutboundEvent {
	return models.OutboundEvent{Type: models.EventAgentMessage, Message: text}
}

func errorEvent(err error) models.OutboundEvent {
	return agentMessage("Error: " + err.Error())
}

// observer streams loop events to the client as they arrive.
type observer struct {
	t      Transport
	logger *slog.Logger
}

func (o *observer) Output(out agent.Output) {
	switch v := out.(type) {
	case agent.ThinkingOutput:
		if v.Thinking != "" {
			o.t.Send(models.OutboundEvent{Type: models.EventThinking, Message: v.Thinking})
		}
	case agent.TextOutput:
		if v.Text != "" {
			o.t.Send(agentMessage(v.Text))
		}
	case agent.ImageOutput:
		if v.SourceType == "base64" {
			o.t.Send(models.OutboundEvent{Type: models.EventImage, Data: v.Data})
		}
	case agent.ToolUseOutput:
		o.logger.Info("Tool requested", "tool", v.Name, "id", v.ID)
	case agent.OtherOutput:
		raw := v.Raw
		if len(raw) == 0 {
			raw, _ = json.Marshal(map[string]string{"type": v.Type})
		}
		o.t.Send(models.OutboundEvent{Type: models.EventOutput, Content: raw})
	default:
		o.logger.Warn("Unhandled loop output", "output", out)
	}
}

func (o *observer) ToolResult(res agent.ToolResult, toolUseID string) {
	if res.Output != "" {
		o.t.Send(agentMessage(res.Output))
	}
	if res.Base64Image != "" {
		o.t.Send(models.OutboundEvent{Type: models.EventImage, Data: res.Base64Image})
	}
	if res.Error != "" {
		o.t.Send(agentMessage("Error: " + res.Error))
	}
	o.logger.Debug("Tool finished", "id", toolUseID, "error", res.Error != "")
}

func (o *observer) APIError(err error) {
	o.logger.Warn("Agent API error", "error", err)
	o.t.Send(agentMessage("API Error: " + err.Error()))
}
