package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// JudgeItem is one row payload submitted for judgment.
type JudgeItem struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// JudgeRequest asks the model to evaluate every item against one
// natural-language criterion. OutputType is "boolean", "number" or
// "text"; ScoreMin/ScoreMax bound number outputs when set.
type JudgeRequest struct {
	Items      []JudgeItem
	Criterion  string
	OutputType string
	ScoreMin   *float64
	ScoreMax   *float64
}

// Judgment is the model's typed verdict for one item.
type Judgment struct {
	ID          string  `json:"id"`
	Passed      bool    `json:"passed"`
	Value       float64 `json:"value"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	TextValue   string  `json:"text_value,omitempty"`
}

const judgeSystemPrompt = `You evaluate rows of tabular research data against a criterion.
You always respond with a JSON array only, no prose, no markdown fences.
Each element is an object: {"id", "passed", "value", "confidence", "explanation", "text_value"}.
"confidence" is a number in [0,1]. "explanation" is one short sentence.`

// Judge submits all items as a single message and parses the per-item
// judgment array. Items absent from the response are simply missing
// from the returned slice; the call fails only as a whole.
func Judge(ctx context.Context, client Client, model string, req JudgeRequest) ([]Judgment, error) {
	if len(req.Items) == 0 {
		return nil, eris.New("anthropic: no items to judge")
	}
	if req.Criterion == "" {
		return nil, eris.New("anthropic: empty criterion")
	}

	payload, err := json.Marshal(req.Items)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: marshal judge items")
	}

	temp := 0.0
	resp, err := client.CreateMessage(ctx, MessageRequest{
		Model:       model,
		MaxTokens:   8192,
		System:      judgeSystemPrompt,
		Temperature: &temp,
		Messages: []Message{
			{Role: "user", Content: buildJudgePrompt(req, payload)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: judge batch")
	}
	resp.Usage.LogCost(model, "judge")

	judgments, err := parseJudgments(resp.Text)
	if err != nil {
		return nil, err
	}
	return judgments, nil
}

// buildJudgePrompt renders the task instructions plus the item payload.
func buildJudgePrompt(req JudgeRequest, payload []byte) string {
	var b strings.Builder
	switch req.OutputType {
	case "text":
		b.WriteString("Extraction task. For each item, extract the value the criterion asks for ")
		b.WriteString("and put it in \"text_value\" (empty string when not determinable); set \"passed\" ")
		b.WriteString("to whether a value was found and \"value\" to 0.\n")
	case "number":
		b.WriteString("Scoring task. For each item, set \"value\" to the numeric score the criterion asks for")
		if req.ScoreMin != nil && req.ScoreMax != nil {
			fmt.Fprintf(&b, " within [%g, %g]", *req.ScoreMin, *req.ScoreMax)
		}
		b.WriteString("; set \"passed\" to whether the item satisfies the criterion.\n")
	default:
		b.WriteString("Filtering task. For each item, set \"passed\" to whether the item satisfies ")
		b.WriteString("the criterion and \"value\" to 1 or 0 accordingly.\n")
	}
	fmt.Fprintf(&b, "\nCriterion: %s\n\nItems:\n%s", req.Criterion, payload)
	return b.String()
}

// parseJudgments decodes the model's JSON array, tolerating stray
// markdown fences.
func parseJudgments(text string) ([]Judgment, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var judgments []Judgment
	if err := json.Unmarshal([]byte(trimmed), &judgments); err != nil {
		return nil, eris.Wrap(err, "anthropic: parse judgments")
	}
	for i := range judgments {
		if judgments[i].Confidence < 0 {
			judgments[i].Confidence = 0
		}
		if judgments[i].Confidence > 1 {
			judgments[i].Confidence = 1
		}
	}
	return judgments, nil
}
