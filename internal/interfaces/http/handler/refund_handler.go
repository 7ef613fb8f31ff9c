package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/inmobiliaria/backend/internal/application/billing"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/inmobiliaria/backend/internal/interfaces/http/middleware"
)

// RefundWorkflow is the refund approval workflow
type RefundWorkflow interface {
	RequestRefund(ctx context.Context, input appbilling.RequestRefundInput) (*billingdomain.Refund, error)
	ApproveRefund(ctx context.Context, refundID, approverID uuid.UUID) (*billingdomain.Refund, error)
	RetryRefund(ctx context.Context, refundID, actorID uuid.UUID) (*billingdomain.Refund, error)
	RejectRefund(ctx context.Context, refundID, rejecterID uuid.UUID, reason string) (*billingdomain.Refund, error)
	GetRefund(ctx context.Context, refundID uuid.UUID) (*billingdomain.Refund, error)
	ListRefunds(ctx context.Context, filter shared.Filter) (shared.Paginated[billingdomain.Refund], error)
}

// RefundHandler handles refund requests and their approval
type RefundHandler struct {
	BaseHandler
	refunds RefundWorkflow
}

// NewRefundHandler creates a new RefundHandler
func NewRefundHandler(refunds RefundWorkflow) *RefundHandler {
	return &RefundHandler{refunds: refunds}
}

// requireActor returns the authenticated user or writes a 401
func (h *RefundHandler) requireActor(c *gin.Context) (uuid.UUID, bool) {
	actor, ok := getActorID(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
	}
	return actor, ok
}

// RequestRefund godoc
//
//	@ID				requestRefund
//	@Summary		Request a refund
//	@Description	Open a pending refund against money paid on an installment. Pending, approved and processed refunds may not exceed the amount paid.
//	@Tags			refunds
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		RequestRefundRequest	true	"Refund request"
//	@Success		201		{object}	APIResponse[RefundResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/refunds [post]
func (h *RefundHandler) RequestRefund(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req RequestRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	email := req.Email
	if email == "" {
		email = middleware.GetJWTEmail(c)
	}

	refund, err := h.refunds.RequestRefund(c.Request.Context(), appbilling.RequestRefundInput{
		InstallmentID:  req.PagoID,
		Amount:         req.Monto,
		Reason:         req.Motivo,
		RequestedBy:    actor,
		RequesterEmail: email,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toRefundResponse(refund))
}

// ListRefunds godoc
//
//	@ID				listRefunds
//	@Summary		List refunds
//	@Tags			refunds
//	@Produce		json
//	@Security		BearerAuth
//	@Param			estatus		query		string	false	"Filter by status"	Enums(pendiente, aprobado, rechazado, procesado, fallido)
//	@Param			pago_id		query		string	false	"Filter by installment"	format(uuid)
//	@Param			page		query		int		false	"Page number"		default(1)
//	@Param			page_size	query		int		false	"Page size"			default(20)	maximum(100)
//	@Success		200			{object}	APIResponse[[]RefundResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Router			/refunds [get]
func (h *RefundHandler) ListRefunds(c *gin.Context) {
	filter := listFilter(c)
	if raw := c.Query("estatus"); raw != "" {
		status := billingdomain.RefundStatus(raw)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid estatus filter")
			return
		}
		filter.Filters["estatus"] = string(status)
	}
	if raw := c.Query("pago_id"); raw != "" {
		installmentID, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid pago_id filter")
			return
		}
		filter.Filters["pago_id"] = installmentID
	}

	page, err := h.refunds.ListRefunds(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := make([]RefundResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toRefundResponse(&page.Items[i]))
	}
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

// GetRefund godoc
//
//	@ID				getRefund
//	@Summary		Get a refund
//	@Tags			refunds
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Refund ID"	format(uuid)
//	@Success		200	{object}	APIResponse[RefundResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/refunds/{id} [get]
func (h *RefundHandler) GetRefund(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	refund, err := h.refunds.GetRefund(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRefundResponse(refund))
}

// ApproveRefund godoc
//
//	@ID				approveRefund
//	@Summary		Approve a refund
//	@Description	Approve a pending refund and submit it to the gateway. A gateway failure leaves the refund fallido and returns 502.
//	@Tags			refunds
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Refund ID"	format(uuid)
//	@Success		200	{object}	APIResponse[RefundResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		502	{object}	ErrorResponse
//	@Router			/refunds/{id}/approve [post]
func (h *RefundHandler) ApproveRefund(c *gin.Context) {
	h.transition(c, h.refunds.ApproveRefund)
}

// RetryRefund godoc
//
//	@ID				retryRefund
//	@Summary		Retry a failed refund
//	@Description	Resubmit a fallido refund to the gateway
//	@Tags			refunds
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Refund ID"	format(uuid)
//	@Success		200	{object}	APIResponse[RefundResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		502	{object}	ErrorResponse
//	@Router			/refunds/{id}/retry [post]
func (h *RefundHandler) RetryRefund(c *gin.Context) {
	h.transition(c, h.refunds.RetryRefund)
}

func (h *RefundHandler) transition(c *gin.Context, fn func(ctx context.Context, refundID, actorID uuid.UUID) (*billingdomain.Refund, error)) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	refund, err := fn(c.Request.Context(), id, actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRefundResponse(refund))
}

// RejectRefund godoc
//
//	@ID				rejectRefund
//	@Summary		Reject a refund
//	@Tags			refunds
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"Refund ID"	format(uuid)
//	@Param			request	body		RejectRefundRequest	true	"Rejection"
//	@Success		200		{object}	APIResponse[RefundResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/refunds/{id}/reject [post]
func (h *RefundHandler) RejectRefund(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	var req RejectRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	refund, err := h.refunds.RejectRefund(c.Request.Context(), id, actor, req.Motivo)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRefundResponse(refund))
}
