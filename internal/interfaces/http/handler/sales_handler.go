package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	"github.com/inmobiliaria/backend/internal/domain/sales"
)

// SaleRegistry registers sales and serves their schedules
type SaleRegistry interface {
	RegisterSale(ctx context.Context, input ledger.RegisterSaleInput) (*ledger.SaleSchedule, error)
	GetSchedule(ctx context.Context, saleID uuid.UUID) (*ledger.SaleSchedule, error)
}

// SalesHandler handles installment sale endpoints
type SalesHandler struct {
	BaseHandler
	sales SaleRegistry
}

// NewSalesHandler creates a new SalesHandler
func NewSalesHandler(sales SaleRegistry) *SalesHandler {
	return &SalesHandler{sales: sales}
}

// RegisterSale godoc
//
//	@ID				registerSale
//	@Summary		Register an installment sale
//	@Description	Create a financed sale, its amortization schedule and, when the vendor has a scheme, its commission tranches
//	@Tags			sales
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		RegisterSaleRequest	true	"Sale"
//	@Success		201		{object}	APIResponse[SaleScheduleResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/sales [post]
func (h *SalesHandler) RegisterSale(c *gin.Context) {
	var req RegisterSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	startDate, err := parseDate("fecha_inicio", req.FechaInicio)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	schedule, err := h.sales.RegisterSale(c.Request.Context(), ledger.RegisterSaleInput{
		CustomerID:  req.ClienteID,
		VendorID:    req.VendedorID,
		PropertyRef: req.Propiedad,
		TotalAmount: req.MontoTotal,
		DownPayment: req.Enganche,
		TermMonths:  req.PlazoMeses,
		AnnualRate:  req.TasaInteres,
		Method:      sales.FinancingMethod(req.Metodo),
		StartDate:   startDate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toSaleScheduleResponse(schedule.Sale, schedule.Installments, schedule.Commissions))
}

// GetSchedule godoc
//
//	@ID				getSaleSchedule
//	@Summary		Get a sale's schedule
//	@Description	Return the sale with its installments in order and its commission tranches
//	@Tags			sales
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Sale ID"	format(uuid)
//	@Success		200	{object}	APIResponse[SaleScheduleResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/sales/{id}/schedule [get]
func (h *SalesHandler) GetSchedule(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	schedule, err := h.sales.GetSchedule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSaleScheduleResponse(schedule.Sale, schedule.Installments, schedule.Commissions))
}
