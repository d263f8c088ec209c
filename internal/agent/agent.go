// Package agent adapts a tool-calling reasoning engine into the normalized
// session event stream consumed by the chat transport. The engine is a
// pinned OpenAI-compatible chat completions endpoint; the analytics query
// tools are exposed to it, and its step sequence (tool calls, tool outputs,
// thought tokens, answer tokens) is translated into typed events.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"pulsebridge/internal/analytics"
	"pulsebridge/pkg/pulsetypes"
)

// systemPrompt frames the engine as the wearer's monitoring assistant.
const systemPrompt = "You are a heart-rate band monitoring assistant. The wearer uploads " +
	"live heart rate readings from a fitness band, and the title of their active computer " +
	"window is recorded alongside. You can use tools to query the wearer's heart rate " +
	"statistics, what software they are using right now, cumulative per-app usage time, " +
	"and whether they appear to be slacking off. Answer concisely and with a light touch, " +
	"like a friend chatting. If the data is insufficient, say so plainly."

// maxToolRounds bounds the tool-call loop so a turn always terminates.
const maxToolRounds = 8

// Agent wraps one reasoning engine plus the tool set it may invoke.
type Agent struct {
	model  string
	client *openai.Client
	tools  map[string]analytics.Tool
	order  []analytics.Tool
	logger *log.Logger
}

// New creates an agent against an OpenAI-compatible endpoint. An empty apiKey
// leaves the agent unconfigured: turns still produce a well-formed event
// stream explaining the misconfiguration.
func New(apiKey, baseURL, model string, tools []analytics.Tool, logger *log.Logger) *Agent {
	a := &Agent{
		model:  model,
		tools:  make(map[string]analytics.Tool, len(tools)),
		order:  tools,
		logger: logger,
	}
	for _, t := range tools {
		a.tools[t.Name] = t
	}

	if apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		client := openai.NewClient(opts...)
		a.client = &client
	}
	return a
}

// IsConfigured reports whether a reasoning engine credential was supplied.
func (a *Agent) IsConfigured() bool {
	return a.client != nil
}

// StreamTurn runs one reasoning turn for message and returns a channel of
// session events. The channel always carries exactly one terminal done event
// and is then closed, regardless of engine errors or cancellation. Events
// are produced incrementally as the engine streams its steps.
func (a *Agent) StreamTurn(ctx context.Context, message string) <-chan pulsetypes.SessionEvent {
	events := make(chan pulsetypes.SessionEvent, 16)

	go func() {
		defer close(events)

		emit := func(ev pulsetypes.SessionEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if a.client == nil {
			emit(pulsetypes.SessionEvent{
				Type:    pulsetypes.EventAnswer,
				Content: "The reasoning engine is not configured. Set PULSE_API_KEY to enable chat.",
			})
			emit(pulsetypes.SessionEvent{Type: pulsetypes.EventDone})
			return
		}

		a.runTurn(ctx, message, emit)
		emit(pulsetypes.SessionEvent{Type: pulsetypes.EventDone})
	}()

	return events
}

// runTurn drives the tool-call loop: stream a completion, surface its steps
// as events, execute any requested tools, feed the results back, repeat
// until the engine produces a final answer. Errors are converted into a
// single answer event; the caller appends the terminal done.
func (a *Agent) runTurn(ctx context.Context, message string, emit func(pulsetypes.SessionEvent) bool) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(message),
	}

	// Tool invocations and results are deduplicated per name for the turn:
	// the tools are idempotent pure reads, so repeats carry no new data.
	announcedCalls := make(map[string]bool)
	surfacedResults := make(map[string]bool)

	for round := 0; round < maxToolRounds; round++ {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(a.model),
			Messages: messages,
			Tools:    a.toolParams(),
		}

		stream := a.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta

			for _, call := range delta.ToolCalls {
				name := call.Function.Name
				if name != "" && !announcedCalls[name] {
					announcedCalls[name] = true
					if !emit(pulsetypes.SessionEvent{
						Type:    pulsetypes.EventThinking,
						Content: "calling tool: " + name,
					}) {
						_ = stream.Close()
						return
					}
				}
			}

			// MiniMax-style thought stream arrives as an extra field on the
			// delta; plain OpenAI models simply never set it.
			if reasoning := reasoningContent(delta); reasoning != "" {
				if !emit(pulsetypes.SessionEvent{Type: pulsetypes.EventThinking, Content: reasoning}) {
					_ = stream.Close()
					return
				}
				continue
			}

			if delta.Content != "" {
				if !emit(pulsetypes.SessionEvent{Type: pulsetypes.EventAnswer, Content: delta.Content}) {
					_ = stream.Close()
					return
				}
			}
		}
		_ = stream.Close()

		if err := stream.Err(); err != nil {
			a.logger.Error("Engine stream failed", "error", err)
			emit(pulsetypes.SessionEvent{
				Type:    pulsetypes.EventAnswer,
				Content: fmt.Sprintf("agent error: %v", err),
			})
			return
		}

		if len(acc.Choices) == 0 {
			return
		}
		assistant := acc.Choices[0].Message
		if len(assistant.ToolCalls) == 0 {
			// Final answer round; its tokens were already emitted above.
			return
		}

		messages = append(messages, assistant.ToParam())
		for _, call := range assistant.ToolCalls {
			name := call.Function.Name
			result := a.invokeTool(name)
			if !surfacedResults[name] {
				surfacedResults[name] = true
				if !emit(pulsetypes.SessionEvent{
					Type:    pulsetypes.EventToolResult,
					Name:    name,
					Content: result,
				}) {
					return
				}
			}
			messages = append(messages, openai.ToolMessage(result, call.ID))
		}
	}

	a.logger.Warn("Turn hit tool round limit", "rounds", maxToolRounds)
}

// invokeTool runs one registered tool by name. Unknown names produce a
// structured error payload so the engine can recover within the turn.
func (a *Agent) invokeTool(name string) string {
	tool, ok := a.tools[name]
	if !ok {
		a.logger.Warn("Engine requested unknown tool", "tool", name)
		return fmt.Sprintf(`{"error":"unknown tool: %s"}`, name)
	}
	a.logger.Debug("Running tool", "tool", name)
	return tool.Run()
}

// toolParams converts the registered tool set to the engine's tool schema.
// All tools take no arguments.
func (a *Agent) toolParams() []openai.ChatCompletionToolParam {
	params := make([]openai.ChatCompletionToolParam, 0, len(a.order))
	for _, t := range a.order {
		params = append(params, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		})
	}
	return params
}

// reasoningContent extracts a provider-specific thought-stream delta, if any.
func reasoningContent(delta openai.ChatCompletionChunkChoiceDelta) string {
	field := delta.JSON.ExtraFields["reasoning_content"]
	if !field.Valid() {
		return ""
	}
	var reasoning string
	if err := json.Unmarshal([]byte(field.Raw()), &reasoning); err != nil {
		return ""
	}
	return reasoning
}
