package policy

// #region imports
import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// #endregion

// #region roles

// Role names a policy duty a model can serve.
type Role string

const (
	RoleStop      Role = "stop"
	RoleRouter    Role = "router"
	RoleConstruct Role = "construct"
)

// ModelSpec is the tuning for one role.
type ModelSpec struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	MaxTokens   int32   `json:"max_tokens"`
}

// DefaultSpecs maps each role to its stock tuning: cheap deterministic
// calls for stop and routing verdicts, a stronger model with room to
// write for question construction.
func DefaultSpecs() map[Role]ModelSpec {
	return map[Role]ModelSpec{
		RoleStop:      {Model: "gemini-2.5-flash", Temperature: 0, TopP: 0.95, MaxTokens: 256},
		RoleRouter:    {Model: "gemini-2.5-flash", Temperature: 0.1, TopP: 0.95, MaxTokens: 256},
		RoleConstruct: {Model: "gemini-2.5-pro", Temperature: 0.7, TopP: 0.95, MaxTokens: 1024},
	}
}

// #endregion

// #region client

const defaultCallTimeout = 20 * time.Second

// Client wraps the GenAI SDK with per-role model selection and a
// per-call timeout.
type Client struct {
	genai   *genai.Client
	specs   map[Role]ModelSpec
	timeout time.Duration
}

// NewClient connects to the Gemini API. The key is required; nil specs
// get DefaultSpecs.
func NewClient(ctx context.Context, apiKey string, specs map[Role]ModelSpec) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if specs == nil {
		specs = DefaultSpecs()
	}
	return &Client{genai: client, specs: specs, timeout: defaultCallTimeout}, nil
}

// Generate runs one prompt under the role's spec and returns the raw
// model text.
func (c *Client) Generate(ctx context.Context, role Role, prompt string) (string, error) {
	spec, ok := c.specs[role]
	if !ok {
		return "", fmt.Errorf("no model spec for role %q", role)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.genai.Models.GenerateContent(ctx, spec.Model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(spec.Temperature),
			TopP:            genai.Ptr(spec.TopP),
			MaxOutputTokens: spec.MaxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", role, err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("%s generate: empty response", role)
	}
	return text, nil
}

// Close releases the underlying client. The GenAI SDK client holds no
// closable resources, so this always succeeds.
func (c *Client) Close() error {
	return nil
}

// #endregion
