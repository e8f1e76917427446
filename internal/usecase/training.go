package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/experiment"
	"CoinCast/internal/normalize"
	"CoinCast/internal/train"
	"CoinCast/internal/window"
	"CoinCast/pkg/config"
	applogger "CoinCast/pkg/logger"
	"CoinCast/pkg/util"
)

// Training orchestrates one full experiment: dataset build, windowing,
// chronological split, normalization, tracked fitting, and artifact save.
// Submitting the same data and configuration twice is a no-op that
// returns the original run.
type Training struct {
	builder   *DatasetBuilder
	tracker   *experiment.Tracker
	artifacts *train.ArtifactStore
	cfg       *config.Config
	hp        train.Hyperparams
	metrics   domrepo.Metrics
	logger    *applogger.Logger
}

func NewTraining(
	builder *DatasetBuilder,
	tracker *experiment.Tracker,
	artifacts *train.ArtifactStore,
	cfg *config.Config,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *Training {
	return &Training{
		builder:   builder,
		tracker:   tracker,
		artifacts: artifacts,
		cfg:       cfg,
		hp:        HyperparamsFromConfig(cfg),
		metrics:   metrics,
		logger:    l,
	}
}

// HyperparamsFromConfig maps the trainer config section onto the trainer's
// hyperparameter set, falling back to defaults for zero values.
func HyperparamsFromConfig(cfg *config.Config) train.Hyperparams {
	hp := train.Hyperparams{
		LearningRate:   cfg.Trainer.LearningRate,
		Epochs:         cfg.Trainer.Epochs,
		BatchSize:      cfg.Trainer.BatchSize,
		Patience:       cfg.Trainer.Patience,
		MinDelta:       cfg.Trainer.MinDelta,
		AttentionSpan:  cfg.Trainer.AttentionSpan,
		AttentionDecay: cfg.Trainer.AttentionDecay,
		Seed:           cfg.Trainer.Seed,
	}
	if hp.LearningRate == 0 {
		hp.LearningRate = 0.01
	}
	if hp.Epochs == 0 {
		hp.Epochs = 50
	}
	if hp.BatchSize == 0 {
		hp.BatchSize = 32
	}
	if hp.Patience == 0 {
		hp.Patience = 5
	}
	if hp.MinDelta == 0 {
		hp.MinDelta = 0.0001
	}
	if hp.AttentionSpan == 0 {
		hp.AttentionSpan = 8
	}
	if hp.AttentionDecay == 0 {
		hp.AttentionDecay = 0.5
	}
	if hp.Seed == 0 {
		hp.Seed = 42
	}
	return hp
}

// Run executes one experiment over observations in [from, to]. When an
// identical experiment already ran and force is false, the existing run
// record is returned unchanged.
func (t *Training) Run(ctx context.Context, from, to time.Time, force bool) (*models.ExperimentRun, error) {
	from, to = util.AlignFromTo(from, to, t.cfg.Pipeline.Frequency)
	version, table, err := t.builder.Build(ctx, from, to)
	if err != nil {
		return nil, err
	}

	wcfg := t.cfg.Window
	wd, err := window.NewWindower(table, wcfg.Lookback, wcfg.Horizon, wcfg.Stride)
	if err != nil {
		return nil, err
	}
	seqs := wd.All()

	candidates := 0
	if n := len(table.Rows) - wcfg.Horizon - (wcfg.Lookback - 1); n > 0 {
		candidates = (n-1)/wcfg.Stride + 1
	}
	for i := 0; i < len(seqs); i++ {
		t.metrics.RecordWindow(true)
	}
	for i := len(seqs); i < candidates; i++ {
		t.metrics.RecordWindow(false)
	}

	trainSeqs, valSeqs, testSeqs, err := splitChronological(seqs, t.cfg.Split.Train, t.cfg.Split.Val)
	if err != nil {
		return nil, err
	}

	norm, err := normalize.New(t.cfg.Normalize.Kind)
	if err != nil {
		return nil, err
	}
	if err := norm.Fit(trainSeqs, table.Schema); err != nil {
		return nil, err
	}
	trainN, err := norm.Apply(trainSeqs)
	if err != nil {
		return nil, err
	}
	valN, err := norm.Apply(valSeqs)
	if err != nil {
		return nil, err
	}
	testN, err := norm.Apply(testSeqs)
	if err != nil {
		return nil, err
	}

	key := experiment.RunKey{
		DataVersion: version,
		FeatureConfig: experiment.FeatureConfig{
			Indicators: indicatorNames(t.cfg.Indicators),
			BucketRule: fmt.Sprintf("%s/%s", t.cfg.Sentiment.Reducer, t.cfg.Sentiment.BucketWidth),
			Lookback:   wcfg.Lookback,
			Horizon:    wcfg.Horizon,
			Stride:     wcfg.Stride,
			Normalize:  t.cfg.Normalize.Kind,
		},
		Hyperparams: t.hp,
	}
	run, err := t.tracker.Begin(ctx, key, force)
	if errors.Is(err, domrepo.ErrRunExists) {
		return run, nil
	}
	if err != nil {
		return nil, err
	}

	model, err := train.NewAttentionModel(len(table.Schema), wcfg.Lookback, t.hp)
	if err != nil {
		return nil, err
	}
	trainer, err := train.NewTrainer(t.hp, t.metrics, t.logger)
	if err != nil {
		return nil, err
	}

	weights, trainErr := trainer.Run(ctx, run, model, trainN, valN)
	if cerr := t.tracker.Complete(ctx, run); cerr != nil {
		t.logger.Error("record run outcome", applogger.String("run_id", run.RunID), applogger.Error(cerr))
	}
	if trainErr != nil {
		return run, trainErr
	}

	t.logger.Info("held-out evaluation",
		applogger.String("run_id", run.RunID),
		applogger.Int("test_sequences", len(testN)),
		applogger.Any("test_loss", model.Loss(testN)),
	)

	artifact := &train.Artifact{
		RunID:       run.RunID,
		DataVersion: version,
		Schema:      table.Schema,
		Lookback:    wcfg.Lookback,
		Horizon:     wcfg.Horizon,
		Hyperparams: t.hp,
		Stats:       norm.Stats(),
		Weights:     weights,
		CreatedAt:   time.Now().UTC(),
	}
	if err := t.artifacts.Save(artifact); err != nil {
		return run, fmt.Errorf("save artifact for %s: %w", run.RunID, err)
	}
	return run, nil
}

// splitChronological cuts the ordered sequence list into train, val, and
// test segments. Order is never shuffled before the cut, so the test
// segment is strictly the most recent data.
func splitChronological(seqs []models.Sequence, trainFrac, valFrac float64) (trainSeqs, valSeqs, testSeqs []models.Sequence, err error) {
	nTrain := int(float64(len(seqs)) * trainFrac)
	nVal := int(float64(len(seqs)) * valFrac)
	if nTrain == 0 || nVal == 0 || nTrain+nVal >= len(seqs) {
		return nil, nil, nil, fmt.Errorf("training: %d sequences cannot fill train/val/test splits", len(seqs))
	}
	return seqs[:nTrain], seqs[nTrain : nTrain+nVal], seqs[nTrain+nVal:], nil
}

func indicatorNames(specs []config.IndicatorSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = fmt.Sprintf("%s_%d", s.Kind, s.Window)
	}
	return out
}
