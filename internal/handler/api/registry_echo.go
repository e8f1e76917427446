package api

import (
	"errors"
	"net/http"

	models "CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/usecase"
	xhttp "CoinCast/pkg/http"
	xlogger "CoinCast/pkg/logger"
	"CoinCast/pkg/queue"

	"github.com/labstack/echo/v4"
)

// RegistryEchoHandler exposes the model registry, run records, training
// submission, and forecasting over Echo.
type RegistryEchoHandler struct {
	logger    *xlogger.Logger
	registry  domrepo.Registry
	runs      domrepo.RunStore
	predictor *usecase.Predictor
	jobs      queue.QueueService
	metrics   domrepo.Metrics
}

func NewRegistryEchoHandler(
	logger *xlogger.Logger,
	registry domrepo.Registry,
	runs domrepo.RunStore,
	predictor *usecase.Predictor,
	jobs queue.QueueService,
	metrics domrepo.Metrics,
) *RegistryEchoHandler {
	return &RegistryEchoHandler{
		logger:    logger,
		registry:  registry,
		runs:      runs,
		predictor: predictor,
		jobs:      jobs,
		metrics:   metrics,
	}
}

func (h *RegistryEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/registry/production", h.Production)
	g.GET("/registry/history", h.History)
	g.POST("/registry/promote", h.Promote)
	g.POST("/registry/rollback", h.Rollback)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.POST("/train", h.Train)
	g.POST("/predict", h.Predict)
}

func (h *RegistryEchoHandler) Production(c echo.Context) error {
	entry, err := h.registry.Production(c.Request().Context())
	if err != nil {
		if errors.Is(err, domrepo.ErrNoProduction) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no production model"))
		}
		h.logger.Error("registry production error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, entry)
}

func (h *RegistryEchoHandler) History(c echo.Context) error {
	entries, err := h.registry.History(c.Request().Context())
	if err != nil {
		h.logger.Error("registry history error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

func (h *RegistryEchoHandler) Promote(c echo.Context) error {
	req := &models.PromoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	run, err := h.runs.Get(ctx, req.RunID)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("run %s not found", req.RunID))
		}
		h.logger.Error("promote run lookup error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if run.Status != models.RunConverged && run.Status != models.RunEarlyStopped {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("run %s is %s, only successful runs can be promoted", run.RunID, run.Status))
	}

	entry, err := h.registry.Promote(ctx, req.RunID, req.ExpectedVersion)
	if err != nil {
		if errors.Is(err, domrepo.ErrRegistryConflict) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_CONFLICT", "expected_version",
				"production version changed, re-fetch and retry", http.StatusConflict).WithError(err))
		}
		h.logger.Error("promote error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.metrics.RecordPromotion("promote")
	h.logger.Info("model promoted",
		xlogger.String("run_id", entry.RunID),
		xlogger.Int64("model_version", entry.ModelVersion),
	)
	return xhttp.CreatedResponse(c, entry)
}

func (h *RegistryEchoHandler) Rollback(c echo.Context) error {
	entry, err := h.registry.Rollback(c.Request().Context())
	if err != nil {
		switch {
		case errors.Is(err, domrepo.ErrNoProduction):
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no production model"))
		case errors.Is(err, domrepo.ErrNoRollback):
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_NO_ROLLBACK", "",
				"no archived predecessor to restore", http.StatusConflict).WithError(err))
		}
		h.logger.Error("rollback error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.metrics.RecordPromotion("rollback")
	h.logger.Info("model rolled back",
		xlogger.String("run_id", entry.RunID),
		xlogger.Int64("model_version", entry.ModelVersion),
	)
	return xhttp.SuccessResponse(c, entry)
}

func (h *RegistryEchoHandler) ListRuns(c echo.Context) error {
	req := &models.RunQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runs, err := h.runs.List(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("list runs error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}

func (h *RegistryEchoHandler) GetRun(c echo.Context) error {
	runID := c.Param("id")
	run, err := h.runs.Get(c.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("run %s not found", runID))
		}
		h.logger.Error("get run error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *RegistryEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := xhttp.ParseTime(req.From)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from: %q is not RFC3339 or unix seconds", req.From))
	}
	to, ok := xhttp.ParseTime(req.To)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("to: %q is not RFC3339 or unix seconds", req.To))
	}
	if !to.After(from) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to must be after from"))
	}

	payload := usecase.TrainJobPayload{From: from, To: to, Force: req.Force}
	if err := h.jobs.PublishMessage(c.Request().Context(), usecase.TrainJobType, payload); err != nil {
		h.logger.Error("enqueue training error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, payload)
}

func (h *RegistryEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	forecast, err := h.predictor.Predict(c.Request().Context(), req.DataVersion)
	if err != nil {
		switch {
		case errors.Is(err, domrepo.ErrNoProduction):
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no production model"))
		case errors.Is(err, domrepo.ErrNotFound):
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no feature snapshot available"))
		}
		h.logger.Error("predict error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, forecast)
}
