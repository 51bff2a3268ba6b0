package http

import (
	"net/http"
	"strconv"

	"golang-ibov-predictor/internal/service"
	"golang-ibov-predictor/pkg/logger"
	"golang-ibov-predictor/pkg/utils"

	"github.com/labstack/echo/v4"
)

// IndexHandler handles HTTP requests for the index composition snapshots.
type IndexHandler struct {
	scraperService service.ScraperService
	logger         *logger.Logger
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(scraperService service.ScraperService, logger *logger.Logger) *IndexHandler {
	return &IndexHandler{scraperService: scraperService, logger: logger}
}

// RegisterRoutes registers the index routes to the Echo group.
func (h *IndexHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/scrape", h.Scrape)
	g.POST("/scrape-historical", h.ScrapeHistorical)
	g.GET("/assets", h.ListAssets)
}

// Scrape godoc
// @Summary Scrape today's index composition
// @Description Collects the current IBOV composition from B3 and stores one snapshot per asset
// @Tags index
// @Produce  json
// @Success 201 {object} dto.ScrapeResult
// @Failure 500 {object} dto.ErrorResponse
// @Router /index/scrape [post]
func (h *IndexHandler) Scrape(c echo.Context) error {
	result, err := h.scraperService.ScrapeDay(c.Request().Context(), utils.TimeNowSaoPaulo())
	if err != nil {
		h.logger.Error("Scrape failed", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, result)
}

// ScrapeHistorical godoc
// @Summary Backfill historical index compositions
// @Description Walks back over past trading days and stores any missing snapshots
// @Tags index
// @Produce  json
// @Param   months  query    int false    "How many months to walk back (default 6)"
// @Success 201 {object} dto.BackfillResult
// @Failure 500 {object} dto.ErrorResponse
// @Router /index/scrape-historical [post]
func (h *IndexHandler) ScrapeHistorical(c echo.Context) error {
	months := 6
	if raw := c.QueryParam("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid months parameter"})
		}
		months = parsed
	}

	result, err := h.scraperService.ScrapeHistorical(c.Request().Context(), months)
	if err != nil {
		h.logger.Error("Historical scrape failed", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, result)
}

// ListAssets godoc
// @Summary List stored snapshots
// @Description Lists every stored index composition snapshot
// @Tags index
// @Produce  json
// @Success 200 {array} entity.IndexAsset
// @Failure 500 {object} dto.ErrorResponse
// @Router /index/assets [get]
func (h *IndexHandler) ListAssets(c echo.Context) error {
	assets, err := h.scraperService.ListAssets(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list assets", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to list assets"})
	}
	return c.JSON(http.StatusOK, assets)
}
