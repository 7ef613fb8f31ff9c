package notification

import (
	"bytes"
	"fmt"
	"html/template"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "refund_requested"}}<p>Se solicitó un reembolso de <strong>${{.Amount}}</strong> sobre el pago {{.InstallmentID}}.</p>
<p>Motivo: {{.Reason}}</p><p>Solicitado por: {{.RequesterEmail}}</p>{{end}}

{{define "refund_approved"}}<p>Tu reembolso de <strong>${{.Amount}}</strong> fue aprobado y está en proceso.</p>{{end}}

{{define "refund_rejected"}}<p>Tu reembolso de <strong>${{.Amount}}</strong> fue rechazado.</p>
{{if .RejectionReason}}<p>Motivo: {{.RejectionReason}}</p>{{end}}{{end}}

{{define "refund_processed"}}<p>Tu reembolso de <strong>${{.Amount}}</strong> fue procesado.</p>
{{if .ExternalRefundID}}<p>Referencia: {{.ExternalRefundID}}</p>{{end}}{{end}}

{{define "refund_failed"}}<p>El reembolso de <strong>${{.Amount}}</strong> no pudo procesarse. Nuestro equipo lo revisará.</p>{{end}}

{{define "invoice_payment_failed"}}<p>Hola {{.CustomerName}},</p>
<p>No pudimos cobrar la renovación de tu suscripción ({{.ExternalInvoiceID}}) por <strong>${{.AmountDue}}</strong>.
Intento número {{.AttemptCount}}. Actualiza tu método de pago para evitar la suspensión.</p>{{end}}

{{define "sale_liquidated"}}<p>La venta {{.ID}} quedó liquidada por un total de <strong>${{.TotalAmount}}</strong>.</p>{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("notification: render %s: %w", name, err)
	}
	return buf.String(), nil
}
