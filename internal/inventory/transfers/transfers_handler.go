package transfers

import (
	"context"
	"net/http"
	"strconv"
	custom_error "substock/pkg/errors"
	"substock/pkg/metadata"
	"substock/pkg/models"
	"substock/pkg/roles"
	"substock/pkg/security"

	"github.com/gin-gonic/gin"
)

type Service interface {
	Create(ctx context.Context, req CreateTransferRequest) (*models.Transfer, error)
	Approve(ctx context.Context, req StepRequest) (*models.Transfer, error)
	Dispense(ctx context.Context, req StepRequest) (*models.Transfer, error)
	Receive(ctx context.Context, req StepRequest) (*models.Transfer, error)
	Cancel(ctx context.Context, req StepRequest) (*models.Transfer, error)
}

type Reader interface {
	Transfer(ctx context.Context, transferID int) (*models.TransferDetail, error)
	Transfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error)
}

type TransferHandler struct {
	Service Service
	Reader  Reader
}

func NewHandler(s Service, r Reader) *TransferHandler {
	return &TransferHandler{Service: s, Reader: r}
}

func (h *TransferHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/transfers/:id", security.Authorize(roles.Staff), h.GetTransfer)
	router.GET("/transfers", security.Authorize(roles.Staff), h.RetrieveTransferList)
	router.POST("/transfers", security.Authorize(roles.Staff), h.CreateTransfer)
	router.PATCH("/transfers/:id/approve", security.Authorize(roles.Pharmacist), h.step(metadata.ActionApprove))
	router.PATCH("/transfers/:id/dispense", security.Authorize(roles.Pharmacist), h.step(metadata.ActionDispense))
	router.PATCH("/transfers/:id/receive", security.Authorize(roles.Staff), h.step(metadata.ActionReceive))
	router.PATCH("/transfers/:id/cancel", security.Authorize(roles.Staff), h.step(metadata.ActionCancel))
}

func (h *TransferHandler) GetTransfer(c *gin.Context) {
	transferID, err := strconv.Atoi(c.Param("id"))

	if err != nil || transferID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Transfer ID is required"})
		return
	}

	transfer, err := h.Reader.Transfer(c.Request.Context(), transferID)
	if err != nil {
		custom_error.Abort(c, "Unable to get transfer", err)
		return
	}

	c.JSON(http.StatusOK, transfer)
}

func (h *TransferHandler) RetrieveTransferList(c *gin.Context) {
	var query TransferQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	filter := models.TransferFilter{
		FromDepartmentID: query.FromDepartmentID,
		ToDepartmentID:   query.ToDepartmentID,
		Limit:            query.Limit,
		Offset:           query.Offset,
	}
	if query.Status != "" {
		status, err := metadata.NewTransferStatus(query.Status)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid transfer status", "details": err.Error()})
			return
		}
		filter.Status = &status
	}

	transfers, err := h.Reader.Transfers(c.Request.Context(), filter)
	if err != nil {
		custom_error.Abort(c, "Unable to get transfers", err)
		return
	}

	c.JSON(http.StatusOK, transfers)
}

func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	var req CreateTransferRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	actorID, err := security.ActorID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user", "details": err.Error()})
		return
	}
	req.ActorID = actorID

	transfer, err := h.Service.Create(c.Request.Context(), req)
	if err != nil {
		custom_error.Abort(c, "Unable to create transfer", err)
		return
	}

	c.JSON(http.StatusCreated, transfer)
}

func (h *TransferHandler) step(action metadata.TransferAction) gin.HandlerFunc {
	run := map[metadata.TransferAction]func(context.Context, StepRequest) (*models.Transfer, error){
		metadata.ActionApprove:  h.Service.Approve,
		metadata.ActionDispense: h.Service.Dispense,
		metadata.ActionReceive:  h.Service.Receive,
		metadata.ActionCancel:   h.Service.Cancel,
	}[action]

	return func(c *gin.Context) {
		transferID, err := strconv.Atoi(c.Param("id"))
		if err != nil || transferID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transfer ID parameter, must be an integer"})
			return
		}

		var req StepRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
				return
			}
		}

		actorID, err := security.ActorID(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user", "details": err.Error()})
			return
		}
		req.TransferID = transferID
		req.ActorID = actorID

		transfer, err := run(c.Request.Context(), req)
		if err != nil {
			custom_error.Abort(c, "Unable to "+string(action)+" transfer", err)
			return
		}

		c.JSON(http.StatusOK, transfer)
	}
}
