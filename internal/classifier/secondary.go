package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jwalitptl/physio-outreach/pkg/circuitbreaker"
)

// SecondaryClassifier double-checks notes the heuristic found no improvement
// in. Implementations may call remote services.
type SecondaryClassifier interface {
	Confirm(ctx context.Context, text string) (bool, error)
}

const secondaryPrompt = `Ti fornirò un testo che contiene frasi che riguardano il progresso del trattamento fisioterapico di un paziente.
Il tuo compito è quello di analizzare il testo e capire se si riferisce a un paziente con dolore lombare che ha mostrato segni di miglioramento.
L'output deve essere esclusivamente "yes" in caso affermativo, o "no" in caso negativo.

Esempio di testo in input:
"Riferisce forte dolore nella zona lombare, soprattutto al mattino. Difficoltà nelle attività quotidiane. Dopo la seduta il paziente riferisce una netta diminuzione del dolore"

Esempio di output:
"yes"

Ora analizza il seguente testo:
`

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIClassifier asks a chat model for a yes/no verdict.
type OpenAIClassifier struct {
	client    openai.Client
	model     string
	maxTokens int
	breaker   *circuitbreaker.CircuitBreaker
}

var _ SecondaryClassifier = (*OpenAIClassifier)(nil)

func NewOpenAIClassifier(cfg OpenAIConfig, breaker *circuitbreaker.CircuitBreaker, extra ...option.RequestOption) *OpenAIClassifier {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 16
	}

	return &OpenAIClassifier{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		breaker:   breaker,
	}
}

func (c *OpenAIClassifier) Confirm(ctx context.Context, text string) (bool, error) {
	var answer string
	call := func() error {
		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: c.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(secondaryPrompt + "\n" + text),
			},
			MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
		})
		if err != nil {
			return fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return false, err
	}

	return strings.Contains(strings.ToLower(answer), "yes"), nil
}
