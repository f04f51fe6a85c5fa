package agent

import (
	"context"
	"fmt"

	"github.com/opencrabs/opencrabs/internal/compaction"
	"github.com/opencrabs/opencrabs/internal/providers"
	"github.com/opencrabs/opencrabs/pkg/models"
)

// summarizationPreamble is the brief, single-purpose system prompt the
// Compactor submits alongside the messages scheduled for removal (§4.H).
const summarizationPreamble = "Summarize the following conversation excerpt concisely but completely. " +
	"Preserve names, decisions, file paths, open questions, and anything a continuation of this conversation would need to remember. " +
	"Write plain prose, not a transcript."

// ProviderCompactor is the default Compactor: it submits one non-streamed
// Complete call to a Provider with a summarization-oriented system prompt,
// chunking the input through internal/compaction's token-share splitter
// when the excerpt itself would overflow the model's own budget.
type ProviderCompactor struct {
	ContextWindow   int
	MaxOutputTokens int
}

// Summarize implements Compactor.
func (c *ProviderCompactor) Summarize(ctx context.Context, provider providers.Provider, model string, toSummarize []*models.Message) (string, error) {
	if len(toSummarize) == 0 {
		return compaction.DefaultSummaryFallback, nil
	}

	window := compaction.ResolveContextWindowTokens(c.ContextWindow, compaction.DefaultContextWindow)
	plain := toCompactionMessages(toSummarize)

	summarizer := &providerSummarizer{provider: provider, model: model, maxOutputTokens: c.MaxOutputTokens}
	cfg := compaction.DefaultSummarizationConfig()
	cfg.ContextWindow = window
	cfg.Model = model

	return compaction.SummarizeInStages(ctx, plain, summarizer, cfg)
}

// providerSummarizer adapts a providers.Provider to compaction.Summarizer.
type providerSummarizer struct {
	provider        providers.Provider
	model           string
	maxOutputTokens int
}

func (s *providerSummarizer) GenerateSummary(ctx context.Context, messages []*compaction.Message, cfg *compaction.SummarizationConfig) (string, error) {
	maxTokens := s.maxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	system := summarizationPreamble
	if cfg != nil && cfg.CustomInstructions != "" {
		system = system + "\n\n" + cfg.CustomInstructions
	}
	if cfg != nil && cfg.PreviousSummary != "" && cfg.PreviousSummary != compaction.DefaultSummaryFallback {
		system = system + "\n\nPrior summary to build on:\n" + cfg.PreviousSummary
	}

	resp, err := s.provider.Complete(ctx, providers.Request{
		Model:       s.model,
		Messages:    []providers.Message{{Role: models.RoleUser, Blocks: models.Blocks{models.TextBlock{Text: compaction.FormatMessagesForSummary(messages)}}}},
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("agent: compaction summarization call: %w", err)
	}
	text := ""
	for _, b := range resp.Blocks {
		if tb, ok := b.(models.TextBlock); ok {
			text += tb.Text
		}
	}
	if text == "" {
		return compaction.DefaultSummaryFallback, nil
	}
	return text, nil
}

func toCompactionMessages(msgs []*models.Message) []*compaction.Message {
	out := make([]*compaction.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		cm := &compaction.Message{
			Role:    string(m.Role),
			Content: m.Text(),
		}
		if m.CreatedAt.Unix() > 0 {
			cm.Timestamp = m.CreatedAt.Unix()
		}
		cm.ID = m.ID
		out = append(out, cm)
	}
	return out
}
