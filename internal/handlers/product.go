// internal/handlers/product.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ozstock/reseller-backend/internal/models"
	"github.com/ozstock/reseller-backend/internal/services"
	"github.com/ozstock/reseller-backend/internal/supplier"
	"github.com/ozstock/reseller-backend/internal/utils"
)

type ProductHandler struct {
	productService *services.ProductService
	syncService    *services.SyncService
}

func NewProductHandler(productService *services.ProductService, syncService *services.SyncService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		syncService:    syncService,
	}
}

type ImportProductRequest struct {
	ASIN    string `json:"asin" validate:"required,asin"`
	Country string `json:"country,omitempty" validate:"omitempty,len=2"`
}

type DeactivateProductsRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

// GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	searchParams := services.ProductSearchParams{
		PaginationParams: params,
		Brand:            c.Query("brand"),
	}

	if status := c.Query("stock_status"); status != "" {
		stockStatus := models.StockStatus(status)
		searchParams.StockStatus = &stockStatus
	}

	if activeStr := c.Query("active"); activeStr != "" {
		if active, err := strconv.ParseBool(activeStr); err == nil {
			searchParams.ActiveOnly = active
		}
	}

	products, total, err := h.productService.ListProducts(userID, searchParams)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(products, total, params))
}

// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	product, err := h.productService.GetProduct(id, userID)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			utils.NotFoundResponse(c, "Product")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, product)
}

// POST /products/import
func (h *ProductHandler) ImportProduct(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req ImportProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	product, err := h.syncService.ImportProduct(c.Request.Context(), userID, req.ASIN, req.Country)
	if err != nil {
		var upstream *supplier.StatusError
		switch {
		case errors.Is(err, supplier.ErrNoData):
			utils.NotFoundResponse(c, "Supplier product")
		case errors.As(err, &upstream):
			utils.ErrorResponse(c, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
		default:
			utils.InternalErrorResponse(c, err.Error())
		}
		return
	}

	utils.CreatedResponse(c, product)
}

// POST /products/deactivate
func (h *ProductHandler) DeactivateProducts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req DeactivateProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	deactivated, err := h.productService.DeactivateProducts(userID, req.IDs)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"deactivated": deactivated})
}

// GET /products/:id/price-history
func (h *ProductHandler) GetPriceHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.productService.GetPriceHistory(id, userID, limit)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			utils.NotFoundResponse(c, "Product")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, entries)
}
