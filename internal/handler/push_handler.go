package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/quocanhngo/memento/internal/repository"
	"github.com/quocanhngo/memento/internal/service"
)

// PushHandler handles push subscription endpoints
type PushHandler struct {
	pushService *service.PushService
}

func NewPushHandler(pushService *service.PushService) *PushHandler {
	return &PushHandler{pushService: pushService}
}

// Register mounts the push routes on rg. manual guards the routes that send
// notifications on demand.
func (h *PushHandler) Register(rg *gin.RouterGroup, manual ...gin.HandlerFunc) {
	rg.GET("/public-key", h.PublicKey)
	rg.POST("/subscribe", h.Subscribe)
	rg.PUT("/prefs", h.UpdatePreferences)
	rg.DELETE("/unsubscribe", h.Unsubscribe)
	rg.GET("/preview", h.Preview)

	guarded := rg.Group("", manual...)
	{
		guarded.POST("/test", h.SendTest)
		guarded.GET("/send-now", h.SendNow)
		guarded.POST("/send-now", h.SendNow)
		guarded.GET("/deliveries", h.RecentDeliveries)
	}
}

// PublicKey godoc
// @Summary Get the VAPID public key
// @Tags Push
// @Produce json
// @Success 200 {object} model.PublicKeyResponse
// @Router /push/public-key [get]
func (h *PushHandler) PublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, model.PublicKeyResponse{PublicKey: h.pushService.PublicKey()})
}

// Subscribe godoc
// @Summary Register or refresh a push subscription
// @Tags Push
// @Accept json
// @Produce json
// @Param body body model.SubscribeRequest true "Subscription and timezone"
// @Success 201 {object} model.OKResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /push/subscribe [post]
func (h *PushHandler) Subscribe(c *gin.Context) {
	var req model.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if _, err := h.pushService.Subscribe(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.OKResponse{OK: true})
}

// UpdatePreferences godoc
// @Summary Update date of birth, gender, life expectancy or timezone
// @Tags Push
// @Accept json
// @Produce json
// @Param body body model.UpdatePreferencesRequest true "Fields to change"
// @Success 200 {object} model.OKResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /push/prefs [put]
func (h *PushHandler) UpdatePreferences(c *gin.Context) {
	var req model.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if _, err := h.pushService.UpdatePreferences(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}

// Unsubscribe godoc
// @Summary Remove a push subscription
// @Tags Push
// @Accept json
// @Produce json
// @Param body body model.EndpointRequest true "Endpoint"
// @Success 200 {object} model.OKResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /push/unsubscribe [delete]
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	var req model.EndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.pushService.Unsubscribe(c.Request.Context(), req.Endpoint); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}

// SendTest godoc
// @Summary Send a test notification to one or all subscribers
// @Tags Push
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.SendTestRequest false "Target and payload overrides"
// @Success 200 {object} model.SentResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Router /push/test [post]
func (h *PushHandler) SendTest(c *gin.Context) {
	var req model.SendTestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	sent, err := h.pushService.SendTest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SentResponse{OK: true, Sent: sent})
}

// SendNow godoc
// @Summary Send the daily reminder now, to one or all subscribers
// @Tags Push
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param endpoint query string false "Subscriber endpoint"
// @Success 200 {object} model.SentResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Router /push/send-now [post]
func (h *PushHandler) SendNow(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" && c.Request.Method == http.MethodPost {
		var req model.EndpointRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
			return
		}
		endpoint = req.Endpoint
	}

	sent, err := h.pushService.SendNow(c.Request.Context(), endpoint)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SentResponse{OK: true, Sent: sent})
}

// Preview godoc
// @Summary Remaining life percentage and week grid for a subscriber
// @Tags Push
// @Produce json
// @Param endpoint query string true "Subscriber endpoint"
// @Success 200 {object} model.PreviewResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /push/preview [get]
func (h *PushHandler) Preview(c *gin.Context) {
	resp, err := h.pushService.Preview(c.Request.Context(), c.Query("endpoint"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecentDeliveries godoc
// @Summary Newest delivery log entries
// @Tags Push
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max entries (default 50)"
// @Success 200 {array} model.DeliveryRecord
// @Router /push/deliveries [get]
func (h *PushHandler) RecentDeliveries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.pushService.RecentDeliveries(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []model.DeliveryRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// respondError maps service errors to HTTP responses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Subscription not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Internal server error"})
	}
}
