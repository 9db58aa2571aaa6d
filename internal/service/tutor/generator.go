package tutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	tutormodel "github.com/zhouzirui/z-notes/internal/model/tutor"
)

// Prompt is one model call: a system instruction, the prior conversation and
// the current query.
type Prompt struct {
	Task    string
	System  string
	History []tutormodel.HistoryEntry
	Query   string
}

// Generator produces model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// ChainGenerator runs prompts through an eino chain of a chat template and a
// chat model.
type ChainGenerator struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

// NewChainGenerator compiles the chain around chatModel.
func NewChainGenerator(ctx context.Context, chatModel model.ChatModel, logger *zap.Logger) (*ChainGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile tutor chain: %w", err)
	}

	return &ChainGenerator{chatModel: chatModel, chain: runnable, logger: logger}, nil
}

// Generate invokes the chain and returns the trimmed reply text.
func (g *ChainGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	input := map[string]any{
		"system":  p.System,
		"history": historyMessages(p.History),
		"query":   p.Query,
	}

	response, err := g.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run %s chain: %w", p.Task, err)
	}

	content := strings.TrimSpace(response.Content)
	g.logger.Debug("model reply", zap.String("task", p.Task), zap.Int("length", len(content)))
	return content, nil
}

func historyMessages(entries []tutormodel.HistoryEntry) []*schema.Message {
	if len(entries) == 0 {
		return nil
	}
	messages := make([]*schema.Message, 0, len(entries))
	for _, entry := range entries {
		switch entry.Role {
		case "user":
			messages = append(messages, schema.UserMessage(entry.Content))
		case "assistant":
			messages = append(messages, schema.AssistantMessage(entry.Content, nil))
		}
	}
	return messages
}
