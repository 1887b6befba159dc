// Package expert invokes the language model on behalf of a persona.
package expert

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/persona"
	"github.com/sells-group/analyst/pkg/anthropic"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultMaxTokens bounds each response.
const DefaultMaxTokens = 4096

// Unavailable is returned in place of analysis when no API key is configured.
const Unavailable = "⚠️ **AI Analysis Unavailable**\n\n" +
	"No Anthropic API key is configured. Set `ANTHROPIC_API_KEY` (or `anthropic.key` in config.yaml) to enable AI-powered analysis.\n\n" +
	"To set up:\n" +
	"1. Get an API key from [console.anthropic.com](https://console.anthropic.com)\n" +
	"2. Export `ANTHROPIC_API_KEY` in the environment of the server and worker\n" +
	"3. Restart the service\n\n" +
	"---\n" +
	"*This is a placeholder. Real analysis will include detailed, multi-section expert output.*"

// Input is the shared context bundle handed to every persona.
type Input struct {
	CompanyInfo string
	WebContext  string
	// PriorOutputs carries other agents' results for synthesis roles.
	PriorOutputs string
}

// Prompt renders the user message for in.
func (in Input) Prompt() string {
	var b strings.Builder
	b.WriteString("## Company Information\n")
	b.WriteString(in.CompanyInfo)
	b.WriteString("\n\n## Web Research Context\n")
	b.WriteString(in.WebContext)
	if in.PriorOutputs != "" {
		b.WriteString("\n\n## Other Agent Analyses\n")
		b.WriteString(in.PriorOutputs)
	}
	return b.String()
}

// Caller is the External Expert Caller. Calls are synchronous and never
// retried here; a failure belongs to the one role that made it.
type Caller interface {
	Analyze(ctx context.Context, role model.Role, in Input) (string, error)
	GapQuestions(ctx context.Context, companyInfo, analyses string) (string, error)
}

// Client implements Caller over the Anthropic Messages API.
type Client struct {
	llm       anthropic.Client
	personas  *persona.Table
	model     string
	maxTokens int64
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the model ID.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New creates a Client. A nil llm puts the client in placeholder mode:
// every call succeeds with the Unavailable notice.
func New(llm anthropic.Client, personas *persona.Table, opts ...Option) *Client {
	if personas == nil {
		personas = persona.Default()
	}
	c := &Client{
		llm:       llm,
		personas:  personas,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Available reports whether calls reach the model.
func (c *Client) Available() bool {
	return c.llm != nil
}

func (c *Client) Analyze(ctx context.Context, role model.Role, in Input) (string, error) {
	p := c.personas.Get(role)
	return c.complete(ctx, string(role), p.Prompt, in.Prompt())
}

func (c *Client) GapQuestions(ctx context.Context, companyInfo, analyses string) (string, error) {
	user := "Company info:\n" + companyInfo + "\n\nAnalyses so far:\n" + analyses
	return c.complete(ctx, "gaps", c.personas.GapPrompt(), user)
}

func (c *Client) complete(ctx context.Context, phase, system, user string) (string, error) {
	if c.llm == nil {
		return Unavailable, nil
	}

	start := time.Now()
	resp, err := c.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    anthropic.CachedSystem(system),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", eris.Wrapf(err, "expert: %s", phase)
	}
	resp.Usage.LogCost(c.model, phase)

	text := resp.Text()
	zap.L().Debug("expert: call complete",
		zap.String("phase", phase),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int("chars", len(text)),
		zap.String("stop_reason", resp.StopReason),
	)
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("expert: %s: empty response", phase)
	}
	return text, nil
}

var _ Caller = (*Client)(nil)
