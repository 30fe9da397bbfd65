package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"

	"cafepos/internal/core"
)

// DaySummary is the model's structured read of one daily reconciliation
// report: a narrative for the morning briefing plus flagged anomalies.
type DaySummary struct {
	Headline  string   `json:"headline" jsonschema_description:"One-sentence summary of the day"`
	Narrative string   `json:"narrative" jsonschema_description:"Short paragraph covering revenue, costs and profit"`
	Anomalies []string `json:"anomalies" jsonschema_description:"Discrepancies or unusual figures worth investigating, empty if none"`
}

type Agent struct {
	client *openai.Client
}

func NewAgent(apiKey string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Agent{client: &client}
}

// SummarizeDay asks the model for a manager-facing summary of the report.
// The report figures are authoritative; the model only narrates them.
func (a *Agent) SummarizeDay(ctx context.Context, report *core.DailyFinancialReport) (*DaySummary, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	prompt := fmt.Sprintf(`You are reviewing a café's end-of-day financial reconciliation.
Summarize it for the owner in plain language.
Rules:
1. Use ONLY the figures in the report below; never invent numbers.
2. Call out any non-zero discrepancy (payment, POS, cash or transfer) as an anomaly.
3. Mention profit relative to revenue.
4. Keep the narrative under 120 words.

Report:
%s`, reportJSON)

	schemaStruct := generateSchema()
	schemaJSON, err := json.Marshal(schemaStruct)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(shared.ChatModelGPT4o),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "daily_report_summary",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A plain-language summary of a daily financial reconciliation report"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var summary DaySummary
	if err := json.Unmarshal([]byte(content), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}

	return &summary, nil
}

func generateSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v DaySummary
	return reflector.Reflect(v)
}
