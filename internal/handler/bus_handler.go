// internal/handler/bus_handler.go
package handler

import (
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bridge-service/internal/bridge"
	"bridge-service/internal/service"
	"bridge-service/internal/utils"
)

// BusHandler handles bus command HTTP requests
type BusHandler struct {
	busService *service.BusService
	logger     *utils.ServiceLogger
}

// NewBusHandler creates a new bus handler
func NewBusHandler(busService *service.BusService, logger *zap.Logger) *BusHandler {
	return &BusHandler{
		busService: busService,
		logger:     utils.NewServiceLogger(logger, "bus-handler"),
	}
}

// RegisterRoutes registers bus command routes
func (h *BusHandler) RegisterRoutes(router *gin.RouterGroup) {
	bus := router.Group("/bus")
	{
		bus.POST("/read-holding-registers", h.ReadHoldingRegisters)
		bus.POST("/read-coils", h.ReadCoils)
		bus.POST("/write-register", h.WriteRegister)
		bus.POST("/write-registers", h.WriteRegisters)
		bus.POST("/commands", h.SubmitCommand)
	}

	router.GET("/operations", h.ListOperations)
	router.GET("/stats", h.GetStats)
}

// ReadRegistersRequest represents a holding-register read request
type ReadRegistersRequest struct {
	DeviceClass string `json:"device_class" binding:"required"`
	Channel     string `json:"channel" binding:"required"`
	Unit        uint8  `json:"unit"`
	Address     uint16 `json:"address"`
	Count       uint16 `json:"count" binding:"required,min=1,max=125"`
	BaudRate    int    `json:"baud_rate"`
	TimeoutMs   int    `json:"timeout_ms"`
}

// ReadCoilsRequest represents a coil read request
type ReadCoilsRequest struct {
	DeviceClass string `json:"device_class" binding:"required"`
	Channel     string `json:"channel" binding:"required"`
	Unit        uint8  `json:"unit"`
	Address     uint16 `json:"address"`
	Count       uint16 `json:"count" binding:"required,min=1,max=2000"`
	BaudRate    int    `json:"baud_rate"`
	TimeoutMs   int    `json:"timeout_ms"`
}

// WriteRegisterRequest represents a single-register write request
type WriteRegisterRequest struct {
	DeviceClass string `json:"device_class" binding:"required"`
	Channel     string `json:"channel" binding:"required"`
	Unit        uint8  `json:"unit"`
	Address     uint16 `json:"address"`
	Value       uint16 `json:"value"`
	BaudRate    int    `json:"baud_rate"`
	TimeoutMs   int    `json:"timeout_ms"`
}

// WriteRegistersRequest represents a multi-register write request
type WriteRegistersRequest struct {
	DeviceClass string   `json:"device_class" binding:"required"`
	Channel     string   `json:"channel" binding:"required"`
	Unit        uint8    `json:"unit"`
	Address     uint16   `json:"address"`
	Values      []uint16 `json:"values" binding:"required,min=1,max=123"`
	BaudRate    int      `json:"baud_rate"`
	TimeoutMs   int      `json:"timeout_ms"`
}

// SubmitCommandRequest represents a raw async command request. The
// payload is hex encoded; the CRC trailer is appended by the service.
type SubmitCommandRequest struct {
	DeviceClass    string `json:"device_class" binding:"required"`
	Channel        string `json:"channel" binding:"required"`
	Payload        string `json:"payload" binding:"required"`
	BaudRate       int    `json:"baud_rate"`
	ResponseLength int    `json:"response_length"`
	TimeoutMs      int    `json:"timeout_ms"`
}

// ReadHoldingRegisters reads holding registers from a bus device
// @Summary Read holding registers
// @Description Read 16-bit holding registers from a device behind the bridge
// @Tags Bus
// @Accept json
// @Produce json
// @Param request body ReadRegistersRequest true "Read request"
// @Success 200 {object} utils.APIResponse{data=service.ReadRegistersResult} "Registers read"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 502 {object} utils.APIResponse "Bus request failed"
// @Failure 504 {object} utils.APIResponse "Bus request timed out"
// @Router /bus/read-holding-registers [post]
func (h *BusHandler) ReadHoldingRegisters(c *gin.Context) {
	var req ReadRegistersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.busService.ReadHoldingRegisters(&service.ReadRegistersRequest{
		DeviceClass: req.DeviceClass,
		Channel:     req.Channel,
		Unit:        req.Unit,
		Address:     req.Address,
		Count:       req.Count,
		BaudRate:    req.BaudRate,
		Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		h.respondOperationError(c, "Failed to read holding registers", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Registers read", result)
}

// ReadCoils reads coils from a bus device
// @Summary Read coils
// @Description Read single-bit coils from a device behind the bridge
// @Tags Bus
// @Accept json
// @Produce json
// @Param request body ReadCoilsRequest true "Read request"
// @Success 200 {object} utils.APIResponse{data=service.ReadCoilsResult} "Coils read"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 502 {object} utils.APIResponse "Bus request failed"
// @Failure 504 {object} utils.APIResponse "Bus request timed out"
// @Router /bus/read-coils [post]
func (h *BusHandler) ReadCoils(c *gin.Context) {
	var req ReadCoilsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.busService.ReadCoils(&service.ReadCoilsRequest{
		DeviceClass: req.DeviceClass,
		Channel:     req.Channel,
		Unit:        req.Unit,
		Address:     req.Address,
		Count:       req.Count,
		BaudRate:    req.BaudRate,
		Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		h.respondOperationError(c, "Failed to read coils", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Coils read", result)
}

// WriteRegister writes a single holding register
// @Summary Write register
// @Description Write one 16-bit holding register on a device behind the bridge
// @Tags Bus
// @Accept json
// @Produce json
// @Param request body WriteRegisterRequest true "Write request"
// @Success 200 {object} utils.APIResponse{data=service.WriteResult} "Register written"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 502 {object} utils.APIResponse "Bus request failed"
// @Failure 504 {object} utils.APIResponse "Bus request timed out"
// @Router /bus/write-register [post]
func (h *BusHandler) WriteRegister(c *gin.Context) {
	var req WriteRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.busService.WriteRegister(&service.WriteRegisterRequest{
		DeviceClass: req.DeviceClass,
		Channel:     req.Channel,
		Unit:        req.Unit,
		Address:     req.Address,
		Value:       req.Value,
		BaudRate:    req.BaudRate,
		Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		h.respondOperationError(c, "Failed to write register", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Register written", result)
}

// WriteRegisters writes consecutive holding registers
// @Summary Write registers
// @Description Write consecutive 16-bit holding registers on a device behind the bridge
// @Tags Bus
// @Accept json
// @Produce json
// @Param request body WriteRegistersRequest true "Write request"
// @Success 200 {object} utils.APIResponse{data=service.WriteResult} "Registers written"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 502 {object} utils.APIResponse "Bus request failed"
// @Failure 504 {object} utils.APIResponse "Bus request timed out"
// @Router /bus/write-registers [post]
func (h *BusHandler) WriteRegisters(c *gin.Context) {
	var req WriteRegistersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.busService.WriteRegisters(&service.WriteRegistersRequest{
		DeviceClass: req.DeviceClass,
		Channel:     req.Channel,
		Unit:        req.Unit,
		Address:     req.Address,
		Values:      req.Values,
		BaudRate:    req.BaudRate,
		Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		h.respondOperationError(c, "Failed to write registers", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Registers written", result)
}

// SubmitCommand queues a raw command without waiting for its outcome
// @Summary Submit raw command
// @Description Queue a raw bus command; the result arrives on the event stream, correlated by token
// @Tags Bus
// @Accept json
// @Produce json
// @Param request body SubmitCommandRequest true "Command request"
// @Success 202 {object} utils.APIResponse{data=service.RawCommandResult} "Command queued"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Router /bus/commands [post]
func (h *BusHandler) SubmitCommand(c *gin.Context) {
	var req SubmitCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payload, err := hex.DecodeString(req.Payload)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Payload must be hex encoded", err)
		return
	}

	result := h.busService.SubmitRaw(&service.RawCommandRequest{
		DeviceClass:    req.DeviceClass,
		Channel:        req.Channel,
		Payload:        payload,
		BaudRate:       req.BaudRate,
		ResponseLength: req.ResponseLength,
		Timeout:        time.Duration(req.TimeoutMs) * time.Millisecond,
	})

	utils.SuccessResponse(c, http.StatusAccepted, "Command queued", result)
}

// ListOperations returns the recent operations, newest first
// @Summary List recent operations
// @Description Get the most recent bus operations with their outcomes
// @Tags Operations
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.BusOperation} "Operations retrieved"
// @Router /operations [get]
func (h *BusHandler) ListOperations(c *gin.Context) {
	operations := h.busService.Operations()
	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved", gin.H{
		"operations": operations,
		"count":      len(operations),
	})
}

// GetStats returns bridge and operation statistics
// @Summary Service statistics
// @Description Get bridge health and aggregate operation counters
// @Tags Operations
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.ServiceStats} "Statistics retrieved"
// @Router /stats [get]
func (h *BusHandler) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Statistics retrieved", h.busService.Stats())
}

// respondOperationError maps a bus failure onto the gateway status codes
func (h *BusHandler) respondOperationError(c *gin.Context, message string, err error) {
	var opErr *service.OperationError
	if !errors.As(err, &opErr) {
		h.logger.Error(message, zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, message, err)
		return
	}

	h.logger.Error(message,
		zap.String("status", string(opErr.Status)),
		zap.Error(opErr.Err),
	)

	switch opErr.Status {
	case bridge.StatusTimeout:
		utils.ErrorResponse(c, http.StatusGatewayTimeout, message, err)
	case bridge.StatusQueueFull:
		utils.ErrorResponse(c, http.StatusServiceUnavailable, message, err)
	default:
		utils.ErrorResponse(c, http.StatusBadGateway, message, err)
	}
}
