package enrich

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/litscope/internal/table"
	"github.com/sells-group/litscope/pkg/anthropic"
)

const (
	// defaultChunkSize splits a batch into sub-requests small enough to
	// fit the response budget.
	defaultChunkSize = 25

	// maxChunkConcurrency limits parallel sub-requests.
	maxChunkConcurrency = 4
)

// AnthropicBackend implements Inferencer over the Claude Messages API.
// One logical batch call fans out into concurrent chunked requests; a
// failure in any chunk fails the whole batch, matching the
// all-or-nothing error policy of the pipeline.
type AnthropicBackend struct {
	client    anthropic.Client
	model     string
	chunkSize int
}

// NewAnthropicBackend creates a backend. chunkSize <= 0 uses the
// default.
func NewAnthropicBackend(client anthropic.Client, model string, chunkSize int) *AnthropicBackend {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &AnthropicBackend{client: client, model: model, chunkSize: chunkSize}
}

func (b *AnthropicBackend) Infer(ctx context.Context, req InferRequest) ([]RowJudgment, error) {
	items := make([]anthropic.JudgeItem, 0, len(req.Rows))
	for _, row := range req.Rows {
		items = append(items, anthropic.JudgeItem{
			ID:     table.Identity(row, req.KeyField),
			Fields: rowPayload(row, req.InputFields),
		})
	}

	jreq := anthropic.JudgeRequest{
		Criterion:  req.Criterion,
		OutputType: string(req.OutputType),
	}
	if req.ScoreRange != nil {
		jreq.ScoreMin = &req.ScoreRange.Min
		jreq.ScoreMax = &req.ScoreRange.Max
	}

	var (
		mu  sync.Mutex
		out []RowJudgment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxChunkConcurrency)

	for start := 0; start < len(items); start += b.chunkSize {
		end := start + b.chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := jreq
		chunk.Items = items[start:end]
		g.Go(func() error {
			judgments, err := anthropic.Judge(gctx, b.client, b.model, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, j := range judgments {
				out = append(out, RowJudgment{
					ID:          j.ID,
					Passed:      j.Passed,
					Value:       j.Value,
					Confidence:  j.Confidence,
					Explanation: j.Explanation,
					TextValue:   j.TextValue,
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// rowPayload projects a row onto the input fields fed to inference.
// An empty field list sends every field.
func rowPayload(row table.Row, inputFields []string) map[string]string {
	fields := inputFields
	if len(fields) == 0 {
		fields = make([]string, 0, len(row))
		for k := range row {
			fields = append(fields, k)
		}
	}
	payload := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok && !v.IsNull() {
			payload[f] = v.Display()
		}
	}
	return payload
}
