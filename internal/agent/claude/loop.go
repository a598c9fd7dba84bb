// Package claude is the default agent loop. It samples the Anthropic Messages
// API, runs the requested computer tools and feeds their results back until
// the model stops asking for tools.
package claude

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"computeruse-backend/internal/agent"
	"computeruse-backend/internal/agent/tools"
	"computeruse-backend/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxIterations = 25

// Compile-time check to ensure Loop implements agent.Loop
var _ agent.Loop = (*Loop)(nil)

// Options configures a Loop.
type Options struct {
	Tools         tools.Options
	SystemPrompt  string // appended to the built-in prompt
	MaxIterations int
	BaseURL       string
	ClientOptions []option.RequestOption
	Logger        *slog.Logger
}

type Loop struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Loop {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{opts: opts, logger: logger.With("component", "claude_loop")}
}

func (l *Loop) createClient(cfg agent.Config) anthropic.Client {
	clientOptions := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if l.opts.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(l.opts.BaseURL))
	}
	clientOptions = append(clientOptions, l.opts.ClientOptions...)
	return anthropic.NewClient(clientOptions...)
}

func (l *Loop) systemPrompt() string {
	prompt := fmt.Sprintf(`You are operating a Linux computer with a graphical desktop.
Use the bash tool to run commands and the screenshot tool to see the screen.
GUI applications must be started in the background with DISPLAY set.
The current date is %s.`, time.Now().Format("Monday, January 2, 2006"))
	if l.opts.SystemPrompt != "" {
		prompt += "\n" + l.opts.SystemPrompt
	}
	return prompt
}

func (l *Loop) preparedParams(cfg agent.Config, history *agent.History, toolParams []anthropic.ToolUnionParam) anthropic.MessageNewParams {
	keepThinking := cfg.ThinkingBudget != nil
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: cfg.MaxTokens,
		Messages:  convertMessages(sanitizeHistory(history.Entries(), keepThinking)),
		System:    []anthropic.TextBlockParam{{Text: l.systemPrompt()}},
		Tools:     toolParams,
	}
	if keepThinking {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: *cfg.ThinkingBudget},
		}
	}
	return params
}

// Run samples until the model ends its turn. API failures are reported to
// obs.APIError and end the run without an error.
func (l *Loop) Run(ctx context.Context, cfg agent.Config, history *agent.History, obs agent.Observer) error {
	cfg = cfg.WithDefaults()
	registry, err := tools.ForVersion(cfg.ToolVersion, l.opts.Tools)
	if err != nil {
		return err
	}
	client := l.createClient(cfg)
	toolParams := convertTools(registry.Infos())

	for i := 0; i < l.opts.MaxIterations; i++ {
		msg, err := client.Messages.New(ctx, l.preparedParams(cfg, history, toolParams))
		if err != nil {
			l.logger.Warn("Messages API call failed", "model", cfg.Model, "error", err)
			obs.APIError(err)
			return nil
		}

		history.Append(agent.Entry{Role: models.RoleAssistant, Content: responseContent(msg.Content)})

		var calls []tools.Call
		for _, block := range msg.Content {
			out := toOutput(block)
			obs.Output(out)
			if use, ok := out.(agent.ToolUseOutput); ok {
				calls = append(calls, tools.Call{ID: use.ID, Name: use.Name, Input: string(use.Input)})
			}
		}
		if len(calls) == 0 {
			return nil
		}

		results := make(models.Content, 0, len(calls))
		for _, call := range calls {
			l.logger.Debug("Running tool", "tool", call.Name, "id", call.ID)
			res := registry.Run(ctx, call)
			obs.ToolResult(res, call.ID)
			results = append(results, toolResultBlock(call.ID, res))
		}
		history.Append(agent.Entry{Role: models.RoleUser, Content: results})
	}
	return fmt.Errorf("agent stopped after %d iterations without finishing", l.opts.MaxIterations)
}
