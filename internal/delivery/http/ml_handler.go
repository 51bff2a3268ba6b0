package http

import (
	"errors"
	"net/http"

	"golang-ibov-predictor/internal/repository"
	"golang-ibov-predictor/internal/service"
	"golang-ibov-predictor/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MLHandler handles HTTP requests for the refinement and prediction pipeline.
type MLHandler struct {
	refinerService  service.RefinerService
	trainingService service.TrainingService
	refinedRepo     repository.RefinedDataRepository
	aiRepo          repository.AIRepository
	logger          *logger.Logger
}

// NewMLHandler creates a new MLHandler. aiRepo may be nil when no explanation
// provider is configured.
func NewMLHandler(
	refinerService service.RefinerService,
	trainingService service.TrainingService,
	refinedRepo repository.RefinedDataRepository,
	aiRepo repository.AIRepository,
	logger *logger.Logger,
) *MLHandler {
	return &MLHandler{
		refinerService:  refinerService,
		trainingService: trainingService,
		refinedRepo:     refinedRepo,
		aiRepo:          aiRepo,
		logger:          logger,
	}
}

// RegisterRoutes registers the ml routes to the Echo group.
func (h *MLHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/refine", h.Refine)
	g.GET("/refined-data", h.ListRefinedData)
	g.POST("/train", h.Train)
	g.GET("/predict/:code", h.Predict)
	g.GET("/metrics", h.Metrics)
}

// Refine godoc
// @Summary Rebuild the refined training dataset
// @Description Deletes and regenerates every refined row from the stored snapshots, then assigns tercile labels
// @Tags ml
// @Produce  json
// @Success 200 {object} dto.RefineResult
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ml/refine [post]
func (h *MLHandler) Refine(c echo.Context) error {
	result, err := h.refinerService.Refine(c.Request().Context())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefinementRunning):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		case errors.Is(err, service.ErrInsufficientData):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		default:
			h.logger.Error("Refinement failed", logger.ErrorField(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, result)
}

// ListRefinedData godoc
// @Summary List refined rows
// @Description Lists the current refined training dataset
// @Tags ml
// @Produce  json
// @Success 200 {array} entity.RefinedData
// @Failure 500 {object} dto.ErrorResponse
// @Router /ml/refined-data [get]
func (h *MLHandler) ListRefinedData(c echo.Context) error {
	records, err := h.refinedRepo.FindAllOrdered(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list refined data", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to list refined data"})
	}
	return c.JSON(http.StatusOK, records)
}

// Train godoc
// @Summary Train a new model
// @Description Fits a classifier on the refined dataset and activates the resulting model version
// @Tags ml
// @Produce  json
// @Success 200 {object} dto.TrainResult
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ml/train [post]
func (h *MLHandler) Train(c echo.Context) error {
	result, err := h.trainingService.Train(c.Request().Context())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefinementRunning):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		case errors.Is(err, service.ErrInsufficientData), errors.Is(err, service.ErrImbalancedClasses):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		default:
			h.logger.Error("Training failed", logger.ErrorField(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, result)
}

// Predict godoc
// @Summary Predict a recommendation for one asset
// @Description Scores the latest refined row for the asset with the active model
// @Tags ml
// @Produce  json
// @Param   code     path     string true  "Asset code"
// @Param   explain  query    bool   false "Attach a Gemini-generated explanation"
// @Success 200 {object} dto.PredictionResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ml/predict/{code} [get]
func (h *MLHandler) Predict(c echo.Context) error {
	code := c.Param("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing asset code"})
	}

	prediction, err := h.trainingService.Predict(c.Request().Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveModel), errors.Is(err, service.ErrNoData):
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		default:
			h.logger.Error("Prediction failed", logger.ErrorField(err), logger.StringField("code", code))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
	}

	if c.QueryParam("explain") == "true" && h.aiRepo != nil {
		explanation, err := h.aiRepo.ExplainPrediction(c.Request().Context(), prediction)
		if err != nil {
			// The prediction itself is still valid without the explanation.
			h.logger.Warn("Failed to generate explanation", logger.ErrorField(err), logger.StringField("code", code))
		} else {
			prediction.Explanation = explanation
		}
	}

	return c.JSON(http.StatusOK, prediction)
}

// Metrics godoc
// @Summary Model metrics
// @Description Reports the active model, recent model history and the label distribution
// @Tags ml
// @Produce  json
// @Success 200 {object} dto.MetricsResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ml/metrics [get]
func (h *MLHandler) Metrics(c echo.Context) error {
	metrics, err := h.trainingService.Metrics(c.Request().Context())
	if err != nil {
		if errors.Is(err, service.ErrNoActiveModel) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		h.logger.Error("Failed to load metrics", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, metrics)
}
