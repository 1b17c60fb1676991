// Package enrich orchestrates derived column enrichment: expand the
// row set if more matches are available, submit the batch to the
// inference backend, and ingest per-row judgments into the value store.
package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/litscope/internal/table"
)

// InferRequest is a single batch inference call. Boolean and number
// output types are filtering requests (ScoreRange carries the numeric
// threshold when relevant); text is an extraction request.
type InferRequest struct {
	Rows        []table.Row
	KeyField    string
	InputFields []string
	Criterion   string
	OutputType  table.OutputType
	ScoreRange  *table.ScoreRange
}

// RowJudgment is the backend's typed judgment for one row.
type RowJudgment struct {
	ID          string
	Passed      bool
	Value       float64
	Confidence  float64
	Explanation string
	TextValue   string
}

// Inferencer is the AI inference backend: one batch call per derived
// column, no streaming or partial results within a call.
type Inferencer interface {
	Infer(ctx context.Context, req InferRequest) ([]RowJudgment, error)
}

// ExpandFunc fetches a larger row set for the current dataset. Nil when
// the caller cannot supply more rows.
type ExpandFunc func(ctx context.Context) ([]table.Row, error)

// Pipeline runs derived column enrichment against an Engine.
type Pipeline struct {
	inferencer Inferencer
}

// NewPipeline creates a pipeline over the given backend.
func NewPipeline(inf Inferencer) *Pipeline {
	return &Pipeline{inferencer: inf}
}

// Run executes the enrichment for an already-registered derived column.
// The column must have been marked processing by the caller before any
// suspension point; Run clears the marker on both success and failure.
// A failed batch call marks every submitted row with the error sentinel
// and leaves the column in place. Rows added to the dataset after the
// batch completes stay pending for this column.
func (p *Pipeline) Run(ctx context.Context, eng *table.Engine, columnID string, spec table.DerivedSpec, totalAvailable int, expand ExpandFunc) error {
	defer eng.SetProcessing(columnID, false)

	// A dataset replacement mid-run abandons this batch; the generation
	// captured here lets the engine recognize stale work.
	gen := eng.Generation()

	// Initial searches under-fetch for latency. Pull the full candidate
	// set lazily, only now that a derived column needs it.
	if expand != nil && eng.RowCount() < totalAvailable {
		expanded, err := expand(ctx)
		if err != nil {
			zap.L().Warn("enrich: row expansion failed, proceeding with loaded rows",
				zap.String("column_id", columnID),
				zap.Error(err),
			)
		} else if len(expanded) > 0 {
			if !eng.ExpandRows(gen, expanded) {
				zap.L().Info("enrich: dataset replaced during expansion, batch abandoned",
					zap.String("column_id", columnID),
				)
				return nil
			}
		}
	}

	rows := eng.Rows()
	if len(rows) == 0 {
		return eris.New("enrich: no rows to enrich")
	}
	keyField := eng.KeyField()
	submitted := table.Identities(rows, keyField)

	judgments, err := p.inferencer.Infer(ctx, InferRequest{
		Rows:        rows,
		KeyField:    keyField,
		InputFields: spec.InputFields,
		Criterion:   spec.Criterion,
		OutputType:  spec.OutputType,
		ScoreRange:  spec.ScoreRange,
	})
	if err != nil {
		// Batch failure is all-or-nothing: every submitted row gets the
		// sentinel, the column stays registered.
		eng.MarkColumnFailed(columnID, submitted)
		zap.L().Error("enrich: batch inference failed",
			zap.String("column_id", columnID),
			zap.Int("rows", len(submitted)),
			zap.Error(err),
		)
		return eris.Wrap(err, "enrich: batch inference")
	}

	ingest(eng, columnID, spec.OutputType, submitted, judgments)

	zap.L().Info("enrich: column populated",
		zap.String("column_id", columnID),
		zap.Int("rows", len(submitted)),
		zap.Int("judgments", len(judgments)),
	)
	return nil
}

// ingest stores one cell record per judgment. Judgments for ids outside
// the submitted batch are dropped: a derived value record is only ever
// written for a row that was part of the column's processing run.
func ingest(eng *table.Engine, columnID string, outputType table.OutputType, submitted []string, judgments []RowJudgment) {
	inBatch := make(map[string]struct{}, len(submitted))
	for _, id := range submitted {
		inBatch[id] = struct{}{}
	}

	for _, j := range judgments {
		if _, ok := inBatch[j.ID]; !ok {
			zap.L().Warn("enrich: judgment for unknown row dropped",
				zap.String("column_id", columnID),
				zap.String("row_id", j.ID),
			)
			continue
		}
		eng.PutCell(columnID, j.ID, table.CellValue{
			Value:       displayValue(outputType, j),
			Confidence:  j.Confidence,
			Explanation: j.Explanation,
			TextValue:   j.TextValue,
		})
	}
}

// displayValue maps a judgment to its display value: Yes/No strings for
// booleans, the numeric score for numbers, the extracted text for text
// columns with the explanation as fallback.
func displayValue(outputType table.OutputType, j RowJudgment) table.Value {
	switch outputType {
	case table.OutputBoolean:
		if j.Passed {
			return table.String("Yes")
		}
		return table.String("No")
	case table.OutputNumber:
		return table.Number(j.Value)
	default:
		if j.TextValue != "" {
			return table.String(j.TextValue)
		}
		return table.String(j.Explanation)
	}
}
