package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/store"
)

// startRun creates a run record, or loads the run being resumed. Without a
// store the run exists only in memory.
func (p *Pipeline) startRun(ctx context.Context, companies []model.CompanyRecord, opts RunOptions) (*model.Run, error) {
	if p.store == nil {
		if opts.ResumeID != "" {
			return nil, eris.New("pipeline: resume requires a store")
		}
		now := time.Now().UTC()
		return &model.Run{
			ID:        uuid.New().String(),
			Input:     opts.Input,
			Segment:   opts.Segment,
			Total:     len(companies),
			Status:    model.RunStatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	if opts.ResumeID != "" {
		run, err := p.store.GetRun(ctx, opts.ResumeID)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load run %s", opts.ResumeID)
		}
		if run.Status == model.RunStatusComplete {
			return nil, eris.Errorf("pipeline: run %s is already complete", run.ID)
		}
		if run.Total != len(companies) {
			return nil, eris.Errorf("pipeline: run %s had %d companies, input has %d", run.ID, run.Total, len(companies))
		}
		return run, nil
	}

	run, err := p.store.CreateRun(ctx, model.Run{
		ID:      uuid.New().String(),
		Input:   opts.Input,
		Segment: opts.Segment,
		Total:   len(companies),
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

// restore fills results from the run's checkpoints. A checkpoint whose
// company key no longer matches the input row is ignored and reprocessed.
func (p *Pipeline) restore(ctx context.Context, runID string, companies []model.CompanyRecord, results []model.CompanyResult, done []bool) (int, error) {
	recs, err := p.store.LoadCheckpoints(ctx, runID)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: load checkpoints")
	}

	n := 0
	for _, rec := range recs {
		if rec.Index < 0 || rec.Index >= len(companies) || companies[rec.Index].Key() != rec.CompanyKey {
			zap.L().Warn("pipeline: checkpoint does not match input, reprocessing",
				zap.String("run_id", runID),
				zap.Int("index", rec.Index),
				zap.String("company", rec.CompanyKey),
			)
			continue
		}
		var r model.CompanyResult
		if err := json.Unmarshal(rec.Result, &r); err != nil {
			zap.L().Warn("pipeline: unreadable checkpoint, reprocessing",
				zap.String("run_id", runID),
				zap.Int("index", rec.Index),
				zap.Error(err),
			)
			continue
		}
		results[rec.Index], done[rec.Index] = r, true
		n++
	}
	return n, nil
}

// checkpointer buffers completed companies and saves them every interval
// results. Save failures are logged; the batch continues.
type checkpointer struct {
	store    store.Store
	runID    string
	interval int

	mu      sync.Mutex
	pending []store.CheckpointRecord
}

func newCheckpointer(st store.Store, runID string, interval int) *checkpointer {
	return &checkpointer{store: st, runID: runID, interval: interval}
}

func (c *checkpointer) enabled() bool {
	return c.store != nil && c.interval > 0
}

func (c *checkpointer) add(ctx context.Context, index int, r model.CompanyResult) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		zap.L().Warn("pipeline: marshal checkpoint", zap.Int("index", index), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.pending = append(c.pending, store.CheckpointRecord{
		RunID:      c.runID,
		Index:      index,
		CompanyKey: r.Company.Key(),
		Result:     data,
	})
	var batch []store.CheckpointRecord
	if len(c.pending) >= c.interval {
		batch, c.pending = c.pending, nil
	}
	c.mu.Unlock()

	c.save(ctx, batch)
}

func (c *checkpointer) flush(ctx context.Context) {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()
	c.save(ctx, batch)
}

func (c *checkpointer) save(ctx context.Context, batch []store.CheckpointRecord) {
	if len(batch) == 0 {
		return
	}
	if err := c.store.SaveCheckpoints(ctx, batch); err != nil {
		zap.L().Warn("pipeline: save checkpoints",
			zap.String("run_id", c.runID),
			zap.Int("records", len(batch)),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("pipeline: checkpoint saved", zap.String("run_id", c.runID), zap.Int("records", len(batch)))
}
