package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	"github.com/inmobiliaria/backend/internal/domain/sales"
)

// Simulator runs the what-if calculators without persisting anything
type Simulator interface {
	SimulateAmortization(input ledger.SimulateAmortizationInput) (*ledger.AmortizationSimulation, error)
	SimulateCommission(ctx context.Context, input ledger.SimulateCommissionInput) (*sales.CommissionResult, error)
}

// SimulationHandler handles the amortization and commission simulators
type SimulationHandler struct {
	BaseHandler
	simulator Simulator
}

// NewSimulationHandler creates a new SimulationHandler
func NewSimulationHandler(simulator Simulator) *SimulationHandler {
	return &SimulationHandler{simulator: simulator}
}

// SimulateAmortization godoc
//
//	@ID				simulateAmortization
//	@Summary		Simulate an amortization schedule
//	@Description	French (fixed payment) or German (fixed principal) schedule for an amount, term and annual rate
//	@Tags			simulation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SimulateAmortizationRequest	true	"Loan terms"
//	@Success		200		{object}	APIResponse[AmortizationResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Router			/simulate/amortization [post]
func (h *SimulationHandler) SimulateAmortization(c *gin.Context) {
	var req SimulateAmortizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	startDate, err := parseDate("fecha_inicio", req.FechaInicio)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	sim, err := h.simulator.SimulateAmortization(ledger.SimulateAmortizationInput{
		Amount:     req.MontoTotal,
		TermMonths: req.PlazoMeses,
		AnnualRate: req.TasaInteres,
		Method:     sales.FinancingMethod(req.Metodo),
		StartDate:  startDate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, AmortizationResponse{
		Tabla:          sim.Rows,
		TotalPagado:    sim.TotalPaid.StringFixed(2),
		TotalIntereses: sim.TotalInterest.StringFixed(2),
	})
}

// SimulateCommission godoc
//
//	@ID				simulateCommission
//	@Summary		Simulate a vendor commission
//	@Description	Commission for a sale amount under the vendor's scheme, optionally overriding scheme, percentage or fixed amount
//	@Tags			simulation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SimulateCommissionRequest	true	"Commission inputs"
//	@Success		200		{object}	APIResponse[sales.CommissionResult]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/simulate/commission [post]
func (h *SimulationHandler) SimulateCommission(c *gin.Context) {
	var req SimulateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	input := ledger.SimulateCommissionInput{
		Amount:             req.MontoTotal,
		VendorID:           req.VendedorID,
		PercentageOverride: req.PorcentajeOverride,
		FixedOverride:      req.MontoFijoOverride,
	}
	if req.EsquemaOverride != nil {
		kind := sales.SchemeKind(*req.EsquemaOverride)
		input.SchemeOverride = &kind
	}

	result, err := h.simulator.SimulateCommission(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
