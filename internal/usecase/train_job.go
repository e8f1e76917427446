package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	applogger "CoinCast/pkg/logger"
	"CoinCast/pkg/queue"
)

// TrainJobType is the queue message type for training requests.
const TrainJobType = "train"

// TrainJobPayload is the queued training request.
type TrainJobPayload struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Force bool      `json:"force"`
}

// TrainJob runs queued training requests so the HTTP surface can accept a
// request and return immediately while the experiment runs on a worker.
type TrainJob struct {
	training *Training
	logger   *applogger.Logger
}

func NewTrainJob(training *Training, l *applogger.Logger) *TrainJob {
	return &TrainJob{training: training, logger: l}
}

func (j *TrainJob) Name() string { return "train-model" }

func (j *TrainJob) Type() string { return TrainJobType }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("train job payload: %w", err)
		}
		raw = data
	}
	var req TrainJobPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("decode train job: %w", err)
	}
	if !req.To.After(req.From) {
		return fmt.Errorf("train job: range [%s, %s] is empty", req.From, req.To)
	}

	run, err := j.training.Run(ctx, req.From, req.To, req.Force)
	if err != nil {
		if run == nil {
			// nothing was recorded yet, let the queue retry
			return err
		}
		// the run record already captures the failure; the job itself is done
		j.logger.Error("queued training failed",
			applogger.String("run_id", run.RunID),
			applogger.Error(err),
		)
		return nil
	}
	j.logger.Info("queued training finished",
		applogger.String("run_id", run.RunID),
		applogger.String("status", string(run.Status)),
	)
	return nil
}

var _ queue.Job = (*TrainJob)(nil)
