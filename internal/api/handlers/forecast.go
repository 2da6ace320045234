package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/costcast/internal/middleware"
	"github.com/irfndi/costcast/internal/models"
	"github.com/irfndi/costcast/internal/services"
)

// ForecastService is implemented by *services.ForecastService
type ForecastService interface {
	Forecast(ctx context.Context, req services.ForecastRequest) (*services.ForecastResponse, error)
	ForecastClient(ctx context.Context, req services.ClientForecastRequest) (*services.ForecastResponse, error)
	LatestForecast(ctx context.Context, clientID string) (*models.ForecastResult, error)
	IngestCosts(ctx context.Context, clientID string, points []models.HistoricalPoint) (int64, error)
}

// ForecastHandler serves the forecasting and cost ingestion endpoints
type ForecastHandler struct {
	service ForecastService
}

// IngestRequest is the body of POST /api/v1/clients/:client_id/costs
type IngestRequest struct {
	Costs []models.HistoricalPoint `json:"costs" binding:"required"`
}

// IngestResponse reports how many daily costs were stored
type IngestResponse struct {
	ClientID string `json:"client_id"`
	Points   int    `json:"points"`
	Affected int64  `json:"affected"`
}

func NewForecastHandler(service ForecastService) *ForecastHandler {
	return &ForecastHandler{service: service}
}

// CreateForecast forecasts an inline history
// @Summary Forecast an inline cost history
// @Tags forecasts
// @Accept json
// @Produce json
// @Success 200 {object} services.ForecastResponse
// @Router /api/v1/forecasts [post]
func (h *ForecastHandler) CreateForecast(c *gin.Context) {
	var req services.ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.service.Forecast(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to generate forecast")
		return
	}
	middleware.AddSpanAttribute(c, "forecast.id", resp.Forecast.Metadata.ForecastID)
	c.JSON(http.StatusOK, resp)
}

// GetClientForecast forecasts from the client's stored history
// @Summary Forecast a client's stored costs
// @Tags forecasts
// @Param client_id path string true "Client ID"
// @Param horizon query int false "Days to forecast"
// @Param lookback_days query int false "Days of history to use"
// @Param methods query string false "Comma-separated methods, e.g. ARIMA,PROPHET"
// @Param budget query number false "Budget threshold for the horizon"
// @Produce json
// @Success 200 {object} services.ForecastResponse
// @Router /api/v1/clients/{client_id}/forecast [get]
func (h *ForecastHandler) GetClientForecast(c *gin.Context) {
	req := services.ClientForecastRequest{ClientID: c.Param("client_id")}

	var err error
	if req.Horizon, err = intQuery(c, "horizon"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid horizon parameter"})
		return
	}
	if req.LookbackDays, err = intQuery(c, "lookback_days"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lookback_days parameter"})
		return
	}
	if budget := c.Query("budget"); budget != "" {
		if req.BudgetThreshold, err = strconv.ParseFloat(budget, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid budget parameter"})
			return
		}
	}
	if methods := c.Query("methods"); methods != "" {
		req.Methods = strings.Split(methods, ",")
	}

	resp, err := h.service.ForecastClient(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to generate forecast")
		return
	}
	middleware.AddSpanAttribute(c, "forecast.id", resp.Forecast.Metadata.ForecastID)
	c.JSON(http.StatusOK, resp)
}

// GetLatestForecast returns the last stored forecast for the client
func (h *ForecastHandler) GetLatestForecast(c *gin.Context) {
	result, err := h.service.LatestForecast(c.Request.Context(), c.Param("client_id"))
	if err != nil {
		respondError(c, err, "Failed to load forecast")
		return
	}
	c.JSON(http.StatusOK, result)
}

// IngestCosts stores daily costs for the client
// @Summary Store daily costs
// @Tags costs
// @Param client_id path string true "Client ID"
// @Accept json
// @Produce json
// @Success 200 {object} IngestResponse
// @Router /api/v1/clients/{client_id}/costs [post]
func (h *ForecastHandler) IngestCosts(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	clientID := c.Param("client_id")
	affected, err := h.service.IngestCosts(c.Request.Context(), clientID, req.Costs)
	if err != nil {
		respondError(c, err, "Failed to store costs")
		return
	}
	c.JSON(http.StatusOK, IngestResponse{
		ClientID: clientID,
		Points:   len(req.Costs),
		Affected: affected,
	})
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
