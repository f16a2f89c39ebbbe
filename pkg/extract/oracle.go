package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/ai"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

const (
	schemaName        = "article_analysis"
	schemaDescription = "Concepts, entities, event and domains extracted from an article"
	DefaultTimeout    = 2 * time.Minute
)

// Oracle wraps the model call that analyses an article. It makes exactly
// one attempt per article, bounded by a timeout, and never trusts the
// reply beyond it being a JSON object.
type Oracle struct {
	client       ai.GraphAIClient
	timeout      time.Duration
	maxTokens    int
	encoding     string
	temperature  float64
	schema       any
	systemPrompt string
}

// NewOracleParams configures an Oracle.
//
// MaxContentTokens truncates the article text before it is placed into the
// prompt; zero disables truncation. Encoding names the tiktoken encoding
// used for counting and defaults to o200k_base.
type NewOracleParams struct {
	Client           ai.GraphAIClient
	Timeout          time.Duration
	MaxContentTokens int
	Encoding         string
}

func NewOracle(params NewOracleParams) (*Oracle, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("oracle requires an ai client")
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	if params.Encoding == "" {
		params.Encoding = "o200k_base"
	}
	return &Oracle{
		client:       params.Client,
		timeout:      params.Timeout,
		maxTokens:    params.MaxContentTokens,
		encoding:     params.Encoding,
		temperature:  0.1,
		schema:       ai.GenerateSchema(&responseSchema{}),
		systemPrompt: ai.ExtractionSystemPrompt,
	}, nil
}

// Extract analyses content. Failures of the model call, timeouts and
// non-JSON replies are reported as common.ErrExtractionFailure.
func (o *Oracle) Extract(ctx context.Context, content string, hints common.ExtractionHints) (Analysis, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Analysis{}, fmt.Errorf("%w: article content is empty", common.ErrInvalidInput)
	}

	prompt := BuildPrompt(o.truncate(content), hints)

	rCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	raw, err := o.client.GenerateJSON(
		rCtx,
		schemaName,
		schemaDescription,
		prompt,
		o.schema,
		ai.WithSystemPrompts(o.systemPrompt),
		ai.WithTemperature(o.temperature),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(rCtx.Err(), context.DeadlineExceeded) {
			return Analysis{}, fmt.Errorf("%w: oracle timed out after %s", common.ErrExtractionFailure, o.timeout)
		}
		return Analysis{}, fmt.Errorf("%w: %v", common.ErrExtractionFailure, err)
	}

	analysis, err := Parse(raw)
	if err != nil {
		return Analysis{}, err
	}

	logger.Debug("[Oracle] Extraction finished",
		"duration", time.Since(start),
		"concepts", len(analysis.MainConcepts),
		"entities", len(analysis.Entities),
		"has_event", analysis.Event != nil,
	)
	return analysis, nil
}

// BuildPrompt fills the extraction prompt with the store hints.
func BuildPrompt(content string, hints common.ExtractionHints) string {
	return fmt.Sprintf(
		ai.ExtractionPrompt,
		listOrNone(hints.RecentEvents),
		listOrNone(hints.Domains),
		listOrNone(hints.KnownConcepts),
		listOrNone(hints.LeafDomains),
		content,
	)
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(v)
	}
	return b.String()
}

func (o *Oracle) truncate(content string) string {
	if o.maxTokens <= 0 {
		return content
	}
	enc, err := tiktoken.GetEncoding(o.encoding)
	if err != nil {
		logger.Warn("[Oracle] Token encoding unavailable, truncating by characters", "err", err)
		return util.Truncate(content, o.maxTokens*3)
	}
	tokens := enc.Encode(content, nil, nil)
	if len(tokens) <= o.maxTokens {
		return content
	}
	logger.Debug("[Oracle] Truncating content", "tokens", len(tokens), "max", o.maxTokens)
	return enc.Decode(tokens[:o.maxTokens])
}
