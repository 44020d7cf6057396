// internal/handlers/sync.go
package handlers

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ozstock/reseller-backend/internal/services"
	"github.com/ozstock/reseller-backend/internal/utils"
)

type SyncHandler struct {
	syncService *services.SyncService
}

func NewSyncHandler(syncService *services.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

type StartSyncRequest struct {
	Limit   int    `json:"limit" validate:"omitempty,min=1"`
	Country string `json:"country,omitempty" validate:"omitempty,len=2"`
}

// POST /sync
func (h *SyncHandler) StartSync(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	// The body is optional; an empty request syncs with defaults.
	var req StartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	result, err := h.syncService.StartBulkSync(userID, services.BulkSyncOptions{
		Limit:   req.Limit,
		Country: req.Country,
	})
	if err != nil {
		if errors.Is(err, services.ErrNothingToSync) {
			utils.SuccessResponse(c, gin.H{
				"message":        "No products eligible for sync",
				"total_products": 0,
			})
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.AcceptedResponse(c, result)
}

// POST /sync/:id/cancel
func (h *SyncHandler) CancelSync(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid session ID", nil)
		return
	}

	if err := h.syncService.CancelSync(userID, sessionID); err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			utils.NotFoundResponse(c, "Sync session")
		case errors.Is(err, services.ErrSessionNotRunning):
			utils.ConflictResponse(c, "Sync session is not running")
		default:
			utils.InternalErrorResponse(c, err.Error())
		}
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "Cancellation requested"})
}

// GET /sync/:id (accepts "latest")
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var sessionID *uuid.UUID
	if idStr := c.Param("id"); idStr != "latest" {
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid session ID", nil)
			return
		}
		sessionID = &parsed
	}

	session, err := h.syncService.GetSyncStatus(userID, sessionID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			utils.NotFoundResponse(c, "Sync session")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, session)
}

// GET /sync/:id/logs
func (h *SyncHandler) GetSyncLogs(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid session ID", nil)
		return
	}

	params := utils.GetPaginationParams(c)
	offset := (params.Page - 1) * params.Limit

	logs, total, err := h.syncService.GetSyncLogs(userID, sessionID, params.Limit, offset)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			utils.NotFoundResponse(c, "Sync session")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, params))
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}
