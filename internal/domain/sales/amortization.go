package sales

import (
	"fmt"
	"time"

	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// ScheduleInput is the input of the amortization generator
type ScheduleInput struct {
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal // nominal, in percent
	TermMonths int
	StartDate  time.Time
	Method     FinancingMethod
}

// ScheduleRow is one generated installment
type ScheduleRow struct {
	Number           int               `json:"numero_pago"`
	DueDate          time.Time         `json:"fecha_vencimiento"`
	Principal        decimal.Decimal   `json:"capital"`
	Interest         decimal.Decimal   `json:"interes"`
	Amount           decimal.Decimal   `json:"monto"`
	RemainingBalance decimal.Decimal   `json:"saldo_restante"`
	Status           InstallmentStatus `json:"estatus"`
}

// MonthlyRate converts an annual percentage rate to the monthly fraction r/100/12
func MonthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.Div(hundred).Div(twelve)
}

// LevelPayment returns the French-method installment P·i·(1+i)^N / ((1+i)^N − 1), or P/N when i is zero.
// The result is not rounded.
func LevelPayment(principal, monthlyRate decimal.Decimal, n int) decimal.Decimal {
	count := decimal.NewFromInt(int64(n))
	if monthlyRate.IsZero() {
		return principal.Div(count)
	}
	growth := decimal.NewFromInt(1).Add(monthlyRate).Pow(count)
	return principal.Mul(monthlyRate).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
}

// GenerateSchedule builds the amortization schedule.
// All amounts are rounded to cents; the last row absorbs the principal remainder
// so that the principal column always sums to in.Principal.
func GenerateSchedule(in ScheduleInput) ([]ScheduleRow, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	i := MonthlyRate(in.AnnualRate)
	n := in.TermMonths
	rows := make([]ScheduleRow, 0, n)

	var payment, fixedPrincipal decimal.Decimal
	switch in.Method {
	case MethodFrench:
		payment = LevelPayment(in.Principal, i, n).Round(2)
	case MethodGerman:
		fixedPrincipal = in.Principal.Div(decimal.NewFromInt(int64(n))).Round(2)
	}

	balance := in.Principal
	allocated := decimal.Zero
	for k := 1; k <= n; k++ {
		interest := balance.Mul(i).Round(2)

		var principal decimal.Decimal
		switch {
		case k == n:
			principal = in.Principal.Sub(allocated)
		case in.Method == MethodFrench:
			principal = payment.Sub(interest)
		default:
			principal = fixedPrincipal
		}
		if principal.GreaterThan(balance) {
			principal = balance
		}
		if principal.IsNegative() {
			principal = decimal.Zero
		}

		allocated = allocated.Add(principal)
		balance = balance.Sub(principal)
		if balance.IsNegative() {
			balance = decimal.Zero
		}

		rows = append(rows, ScheduleRow{
			Number:           k,
			DueDate:          AddMonths(in.StartDate, k),
			Principal:        principal,
			Interest:         interest,
			Amount:           principal.Add(interest),
			RemainingBalance: balance,
			Status:           InstallmentPending,
		})
	}

	return rows, nil
}

func (in ScheduleInput) validate() error {
	if !in.Principal.IsPositive() {
		return shared.NewDomainError("INVALID_PRINCIPAL", "Principal must be greater than zero")
	}
	if in.TermMonths <= 0 {
		return shared.NewDomainError("INVALID_TERM", "Term must be at least one month")
	}
	if in.AnnualRate.IsNegative() {
		return shared.NewDomainError("INVALID_RATE", "Interest rate cannot be negative")
	}
	if !in.Method.IsValid() {
		return shared.NewDomainError("INVALID_METHOD", fmt.Sprintf("Unknown financing method %q", in.Method))
	}
	return nil
}

// AddMonths moves t forward by k calendar months, clamping to the last day of the target month
// (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, k int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(k), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}
