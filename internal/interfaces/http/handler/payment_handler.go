package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// PaymentLedger is the part of the ledger the payment endpoints use
type PaymentLedger interface {
	ApplyPayment(ctx context.Context, input ledger.ApplyPaymentInput) (*ledger.PaymentResult, error)
	GetInstallment(ctx context.Context, id uuid.UUID) (*sales.Installment, error)
}

// PaymentHandler handles manual payment registration and installment lookups
type PaymentHandler struct {
	BaseHandler
	ledger PaymentLedger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(ledger PaymentLedger) *PaymentHandler {
	return &PaymentHandler{ledger: ledger}
}

// RegisterManualPayment godoc
//
//	@ID				registerManualPayment
//	@Summary		Register a manual payment
//	@Description	Apply money received outside the gateway (cash, transfer) to an installment.
//	@Description	With only venta_id the earliest unpaid installment is used. A late fee is assessed when the payment date is past due.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		ManualPaymentRequest	true	"Payment"
//	@Success		200		{object}	APIResponse[ManualPaymentResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/payments/manual [post]
func (h *PaymentHandler) RegisterManualPayment(c *gin.Context) {
	var req ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	paymentDate, err := parseDate("fecha_pago", req.FechaPago)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.ledger.ApplyPayment(c.Request.Context(), ledger.ApplyPaymentInput{
		SaleID:        req.VentaID,
		InstallmentID: req.PagoID,
		Amount:        req.Monto,
		PaymentDate:   paymentDate,
		Method:        req.MetodoPago,
		Reference:     req.Referencia,
		Notes:         req.Notas,
		Source:        sales.PaymentSourceManual,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	actor, _ := getActorID(c)
	logger.FromContext(c.Request.Context()).Info("Manual payment registered",
		zap.String("installment_id", result.Installment.ID.String()),
		zap.String("amount", req.Monto.StringFixed(2)),
		zap.String("registered_by", actor.String()))

	resp := ManualPaymentResponse{
		Pago:           toInstallmentResponse(result.Installment),
		MoraAplicada:   result.LateFeeAssessed,
		VentaLiquidada: result.SaleLiquidated,
	}
	if result.Sale != nil {
		resp.VentaEstatus = string(result.Sale.Status)
	}
	if result.Record != nil {
		resp.ReciboID = &result.Record.ID
	}
	h.Success(c, resp)
}

// GetInstallment godoc
//
//	@ID				getInstallment
//	@Summary		Get an installment
//	@Tags			payments
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Installment ID"	format(uuid)
//	@Success		200	{object}	APIResponse[InstallmentResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/payments/{id} [get]
func (h *PaymentHandler) GetInstallment(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	installment, err := h.ledger.GetInstallment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInstallmentResponse(installment))
}
