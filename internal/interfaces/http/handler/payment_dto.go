package handler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/shopspring/decimal"
)

// dateLayouts are the accepted request date formats, most specific first
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// parseDate reads an optional request date. Empty input yields the zero time.
func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD or RFC 3339", field)
}

// ManualPaymentRequest records money received outside the gateway
// @Description Manual payment against a sale's next installment or a specific installment
type ManualPaymentRequest struct {
	VentaID    *uuid.UUID      `json:"venta_id" binding:"required_without=PagoID"`
	PagoID     *uuid.UUID      `json:"pago_id" binding:"required_without=VentaID"`
	Monto      decimal.Decimal `json:"monto" binding:"decimal_gt0" swaggertype:"string" example:"8791.59"`
	FechaPago  string          `json:"fecha_pago" example:"2026-05-01"`
	MetodoPago string          `json:"metodo_pago" binding:"required,max=30" example:"transferencia"`
	Referencia string          `json:"referencia" binding:"max=255" example:"SPEI-000123"`
	Notas      string          `json:"notas" binding:"max=1000"`
}

// InstallmentResponse is one amortization row with its payment state
// @Description Installment (pago) of a financed sale
type InstallmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	VentaID          uuid.UUID  `json:"venta_id"`
	NumeroPago       int        `json:"numero_pago" example:"1"`
	FechaVencimiento time.Time  `json:"fecha_vencimiento"`
	Monto            string     `json:"monto" example:"8791.59"`
	Capital          string     `json:"capital" example:"3791.59"`
	Interes          string     `json:"interes" example:"5000.00"`
	SaldoRestante    string     `json:"saldo_restante" example:"496208.41"`
	MontoPagado      string     `json:"monto_pagado" example:"0.00"`
	Mora             string     `json:"mora" example:"0.00"`
	Estatus          string     `json:"estatus" example:"pendiente"`
	MetodoPago       string     `json:"metodo_pago,omitempty"`
	FechaPago        *time.Time `json:"fecha_pago,omitempty"`
	ReferenciaPago   string     `json:"referencia_pago,omitempty"`
	UltimosDigitos   string     `json:"ultimos_digitos,omitempty"`
	Notas            string     `json:"notas,omitempty"`
}

func toInstallmentResponse(i *sales.Installment) InstallmentResponse {
	return InstallmentResponse{
		ID:               i.ID,
		VentaID:          i.SaleID,
		NumeroPago:       i.Number,
		FechaVencimiento: i.DueDate,
		Monto:            i.Amount.StringFixed(2),
		Capital:          i.Principal.StringFixed(2),
		Interes:          i.Interest.StringFixed(2),
		SaldoRestante:    i.RemainingBalance.StringFixed(2),
		MontoPagado:      i.AmountPaid.StringFixed(2),
		Mora:             i.LateFee.StringFixed(2),
		Estatus:          string(i.Status),
		MetodoPago:       i.PaymentMethod,
		FechaPago:        i.PaidAt,
		ReferenciaPago:   i.PaymentReference,
		UltimosDigitos:   i.CardLast4,
		Notas:            i.Notes,
	}
}

func toInstallmentResponses(items []sales.Installment) []InstallmentResponse {
	out := make([]InstallmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toInstallmentResponse(&items[i]))
	}
	return out
}

// ManualPaymentResponse is the installment after the payment plus what the payment caused
// @Description Result of a manual payment
type ManualPaymentResponse struct {
	Pago           InstallmentResponse `json:"pago"`
	VentaEstatus   string              `json:"venta_estatus" example:"contrato"`
	MoraAplicada   bool                `json:"mora_aplicada"`
	VentaLiquidada bool                `json:"venta_liquidada"`
	ReciboID       *uuid.UUID          `json:"recibo_id,omitempty"`
}

// SimulateAmortizationRequest asks for a schedule without persisting it
// @Description Amortization what-if
type SimulateAmortizationRequest struct {
	MontoTotal  decimal.Decimal `json:"monto_total" binding:"decimal_gt0" swaggertype:"string" example:"500000"`
	PlazoMeses  int             `json:"plazo_meses" binding:"required,min=1,max=600" example:"60"`
	TasaInteres decimal.Decimal `json:"tasa_interes" binding:"decimal_gte0" swaggertype:"string" example:"12"`
	Metodo      string          `json:"metodo" binding:"required,metodo" example:"frances"`
	FechaInicio string          `json:"fecha_inicio" example:"2026-01-15"`
}

// AmortizationResponse is a computed schedule with its totals
// @Description Amortization schedule
type AmortizationResponse struct {
	Tabla          []sales.ScheduleRow `json:"tabla"`
	TotalPagado    string              `json:"total_pagado" example:"667333.40"`
	TotalIntereses string              `json:"total_intereses" example:"167333.40"`
}

// SimulateCommissionRequest asks what a vendor would earn on a sale amount
// @Description Commission what-if
type SimulateCommissionRequest struct {
	MontoTotal         decimal.Decimal  `json:"monto_total" binding:"decimal_gte0" swaggertype:"string" example:"1000000"`
	VendedorID         uuid.UUID        `json:"vendedor_id" binding:"required"`
	EsquemaOverride    *string          `json:"esquema_override" binding:"omitempty,oneof=porcentaje fijo mixto" example:"mixto"`
	PorcentajeOverride *decimal.Decimal `json:"porcentaje_override" swaggertype:"string" example:"3"`
	MontoFijoOverride  *decimal.Decimal `json:"monto_fijo_override" swaggertype:"string" example:"5000"`
}

// RegisterSaleRequest creates a financed sale with its schedule and commission tranches
// @Description New installment sale
type RegisterSaleRequest struct {
	ClienteID   uuid.UUID       `json:"cliente_id" binding:"required"`
	VendedorID  uuid.UUID       `json:"vendedor_id" binding:"required"`
	Propiedad   string          `json:"propiedad" binding:"max=100" example:"Lote 14, Manzana C"`
	MontoTotal  decimal.Decimal `json:"monto_total" binding:"decimal_gt0" swaggertype:"string" example:"600000"`
	Enganche    decimal.Decimal `json:"enganche" binding:"decimal_gte0" swaggertype:"string" example:"100000"`
	PlazoMeses  int             `json:"plazo_meses" binding:"required,min=1,max=600" example:"60"`
	TasaInteres decimal.Decimal `json:"tasa_interes" binding:"decimal_gte0" swaggertype:"string" example:"12"`
	Metodo      string          `json:"metodo" binding:"required,metodo" example:"frances"`
	FechaInicio string          `json:"fecha_inicio" example:"2026-01-15"`
}

// SaleResponse is a sale header
// @Description Installment sale (venta)
type SaleResponse struct {
	ID          uuid.UUID  `json:"id"`
	ClienteID   uuid.UUID  `json:"cliente_id"`
	VendedorID  uuid.UUID  `json:"vendedor_id"`
	Propiedad   string     `json:"propiedad,omitempty"`
	MontoTotal  string     `json:"monto_total" example:"600000.00"`
	Enganche    string     `json:"enganche" example:"100000.00"`
	PlazoMeses  int        `json:"plazo_meses" example:"60"`
	TasaInteres string     `json:"tasa_interes" example:"12"`
	Metodo      string     `json:"metodo" example:"frances"`
	FechaInicio time.Time  `json:"fecha_inicio"`
	Estatus     string     `json:"estatus" example:"contrato"`
	LiquidadaEn *time.Time `json:"liquidada_en,omitempty"`
}

// CommissionResponse is one commission tranche owed to the vendor
// @Description Commission tranche
type CommissionResponse struct {
	ID           uuid.UUID `json:"id"`
	TipoComision string    `json:"tipo_comision" example:"enganche"`
	Monto        string    `json:"monto" example:"9000.00"`
	Estatus      string    `json:"estatus" example:"pendiente"`
}

// SaleScheduleResponse is a sale with its installments and commission tranches
// @Description Sale with amortization schedule
type SaleScheduleResponse struct {
	Venta      SaleResponse          `json:"venta"`
	Pagos      []InstallmentResponse `json:"pagos"`
	Comisiones []CommissionResponse  `json:"comisiones"`
}

func toSaleResponse(s *sales.Sale) SaleResponse {
	return SaleResponse{
		ID:          s.ID,
		ClienteID:   s.CustomerID,
		VendedorID:  s.VendorID,
		Propiedad:   s.PropertyRef,
		MontoTotal:  s.TotalAmount.StringFixed(2),
		Enganche:    s.DownPayment.StringFixed(2),
		PlazoMeses:  s.TermMonths,
		TasaInteres: s.AnnualRate.String(),
		Metodo:      s.Method.String(),
		FechaInicio: s.StartDate,
		Estatus:     string(s.Status),
		LiquidadaEn: s.LiquidatedAt,
	}
}

func toSaleScheduleResponse(sale *sales.Sale, installments []sales.Installment, commissions []sales.Commission) SaleScheduleResponse {
	out := SaleScheduleResponse{
		Venta:      toSaleResponse(sale),
		Pagos:      toInstallmentResponses(installments),
		Comisiones: make([]CommissionResponse, 0, len(commissions)),
	}
	for _, c := range commissions {
		out.Comisiones = append(out.Comisiones, CommissionResponse{
			ID:           c.ID,
			TipoComision: string(c.Type),
			Monto:        c.Amount.StringFixed(2),
			Estatus:      string(c.Status),
		})
	}
	return out
}

// RequestRefundRequest asks to return money paid against an installment
// @Description Refund request
type RequestRefundRequest struct {
	PagoID uuid.UUID       `json:"pago_id" binding:"required"`
	Monto  decimal.Decimal `json:"monto" binding:"decimal_gt0" swaggertype:"string" example:"1500.00"`
	Motivo string          `json:"motivo" binding:"required,max=1000" example:"Pago duplicado"`
	// Email receives the outcome; defaults to the token's email claim
	Email string `json:"email" binding:"omitempty,email"`
}

// RejectRefundRequest carries the rejection reason
// @Description Refund rejection
type RejectRefundRequest struct {
	Motivo string `json:"motivo" binding:"required,max=1000" example:"Fuera de plazo"`
}

// RefundResponse is a refund and its workflow state
// @Description Refund (reembolso)
type RefundResponse struct {
	ID               uuid.UUID  `json:"id"`
	PagoID           uuid.UUID  `json:"pago_id"`
	Monto            string     `json:"monto_reembolsado" example:"1500.00"`
	Motivo           string     `json:"motivo"`
	Estatus          string     `json:"estatus" example:"pendiente"`
	SolicitadoPor    uuid.UUID  `json:"solicitado_por"`
	AprobadoPor      *uuid.UUID `json:"aprobado_por,omitempty"`
	RechazadoPor     *uuid.UUID `json:"rechazado_por,omitempty"`
	MotivoRechazo    string     `json:"motivo_rechazo,omitempty"`
	ExternalRefundID string     `json:"external_refund_id,omitempty"`
	Notas            string     `json:"notas,omitempty"`
	ProcesadoEn      *time.Time `json:"procesado_en,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toRefundResponse(r *billingdomain.Refund) RefundResponse {
	return RefundResponse{
		ID:               r.ID,
		PagoID:           r.InstallmentID,
		Monto:            r.Amount.StringFixed(2),
		Motivo:           r.Reason,
		Estatus:          string(r.Status),
		SolicitadoPor:    r.RequestedBy,
		AprobadoPor:      r.ApprovedBy,
		RechazadoPor:     r.RejectedBy,
		MotivoRechazo:    r.RejectionReason,
		ExternalRefundID: r.ExternalRefundID,
		Notas:            r.Notes,
		ProcesadoEn:      r.ProcessedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// StartSubscriptionRequest starts recurring charges for a customer
// @Description New subscription
type StartSubscriptionRequest struct {
	ClienteID uuid.UUID  `json:"cliente_id" binding:"required"`
	VentaID   *uuid.UUID `json:"venta_id"`
	PriceID   string     `json:"price_id" binding:"required,max=255" example:"price_1PmensualidadMXN"`
}

// ChangePlanRequest moves a subscription to another price
// @Description Subscription plan change
type ChangePlanRequest struct {
	PriceID string `json:"price_id" binding:"required,max=255" example:"price_1PtrimestralMXN"`
}

// SubscriptionResponse is the local mirror of a gateway subscription
// @Description Subscription mirror
type SubscriptionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	VentaID            *uuid.UUID `json:"venta_id,omitempty"`
	ClienteID          *uuid.UUID `json:"cliente_id,omitempty"`
	ExternalID         string     `json:"external_id" example:"sub_1Pxyz"`
	Status             string     `json:"status" example:"active"`
	PriceID            string     `json:"price_id"`
	PreviousPriceID    string     `json:"previous_price_id,omitempty"`
	PlanChangedAt      *time.Time `json:"plan_changed_at,omitempty"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
}

func toSubscriptionResponse(s *billingdomain.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                 s.ID,
		VentaID:            s.SaleID,
		ClienteID:          s.CustomerID,
		ExternalID:         s.ExternalID,
		Status:             string(s.Status),
		PriceID:            s.PriceID,
		PreviousPriceID:    s.PreviousPriceID,
		PlanChangedAt:      s.PlanChangedAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CanceledAt:         s.CanceledAt,
	}
}
