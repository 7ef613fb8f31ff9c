package sales_test

import (
	"testing"
	"time"

	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var start = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestGenerateSchedule_French(t *testing.T) {
	rows, err := sales.GenerateSchedule(sales.ScheduleInput{
		Principal:  dec("90000"),
		AnnualRate: dec("12"),
		TermMonths: 12,
		StartDate:  start,
		Method:     sales.MethodFrench,
	})
	require.NoError(t, err)
	require.Len(t, rows, 12)

	// cuota = P*i*(1+i)^N / ((1+i)^N - 1) with P=90000, i=0.01, N=12 is 7996.3909..., so 7996.39 after rounding
	t.Run("level payment", func(t *testing.T) {
		for _, row := range rows[:11] {
			assert.True(t, row.Amount.Equal(dec("7996.39")), "row %d amount %s", row.Number, row.Amount)
		}
		last := rows[11]
		assert.True(t, last.Amount.Sub(dec("7996.39")).Abs().LessThanOrEqual(dec("0.01")))
	})

	t.Run("first row splits interest and principal", func(t *testing.T) {
		assert.True(t, rows[0].Interest.Equal(dec("900")))
		assert.True(t, rows[0].Principal.Equal(dec("7096.39")))
		assert.True(t, rows[0].RemainingBalance.Equal(dec("82903.61")))
	})

	t.Run("last row closes the balance", func(t *testing.T) {
		last := rows[11]
		assert.True(t, last.RemainingBalance.IsZero())
		assert.True(t, last.Principal.Add(last.Interest).Equal(last.Amount))
	})

	t.Run("rows are numbered and due monthly", func(t *testing.T) {
		for idx, row := range rows {
			assert.Equal(t, idx+1, row.Number)
			assert.Equal(t, sales.InstallmentPending, row.Status)
			assert.Equal(t, start.AddDate(0, idx+1, 0), row.DueDate)
		}
	})
}

func TestGenerateSchedule_German(t *testing.T) {
	rows, err := sales.GenerateSchedule(sales.ScheduleInput{
		Principal:  dec("120000"),
		AnnualRate: dec("12"),
		TermMonths: 12,
		StartDate:  start,
		Method:     sales.MethodGerman,
	})
	require.NoError(t, err)
	require.Len(t, rows, 12)

	for _, row := range rows {
		assert.True(t, row.Principal.Equal(dec("10000")), "row %d principal %s", row.Number, row.Principal)
	}
	assert.True(t, rows[0].Interest.Equal(dec("1200")))
	assert.True(t, rows[1].Interest.Equal(dec("1100")))
	assert.True(t, rows[0].Amount.Equal(dec("11200")))

	for k := 1; k < len(rows); k++ {
		assert.True(t, rows[k].Interest.LessThan(rows[k-1].Interest), "interest must decline at row %d", k+1)
	}
}

func TestGenerateSchedule_ZeroRate(t *testing.T) {
	for _, method := range []sales.FinancingMethod{sales.MethodFrench, sales.MethodGerman} {
		t.Run(method.String(), func(t *testing.T) {
			rows, err := sales.GenerateSchedule(sales.ScheduleInput{
				Principal:  dec("1000"),
				AnnualRate: decimal.Zero,
				TermMonths: 3,
				StartDate:  start,
				Method:     method,
			})
			require.NoError(t, err)
			assert.True(t, rows[0].Amount.Equal(dec("333.33")))
			assert.True(t, rows[1].Amount.Equal(dec("333.33")))
			assert.True(t, rows[2].Amount.Equal(dec("333.34")))
			for _, row := range rows {
				assert.True(t, row.Interest.IsZero())
			}
		})
	}
}

func TestGenerateSchedule_FullyAmortizes(t *testing.T) {
	principals := []string{"1000", "90000", "123456.78", "2500000.01"}
	rates := []string{"0", "7.5", "12", "18.99", "36"}
	terms := []int{1, 7, 12, 60, 240}
	methods := []sales.FinancingMethod{sales.MethodFrench, sales.MethodGerman}

	for _, p := range principals {
		for _, r := range rates {
			for _, n := range terms {
				for _, m := range methods {
					rows, err := sales.GenerateSchedule(sales.ScheduleInput{
						Principal:  dec(p),
						AnnualRate: dec(r),
						TermMonths: n,
						StartDate:  start,
						Method:     m,
					})
					require.NoError(t, err)
					require.Len(t, rows, n)

					sum := decimal.Zero
					for _, row := range rows {
						sum = sum.Add(row.Principal)
						assert.True(t, row.Principal.Add(row.Interest).Equal(row.Amount))
					}
					assert.True(t, sum.Equal(dec(p)), "P=%s r=%s n=%d %s: principal sums to %s", p, r, n, m, sum)
					assert.True(t, rows[n-1].RemainingBalance.IsZero())
				}
			}
		}
	}
}

func TestGenerateSchedule_Validation(t *testing.T) {
	tests := []struct {
		name         string
		input        sales.ScheduleInput
		expectedCode string
	}{
		{
			name:         "zero principal",
			input:        sales.ScheduleInput{Principal: decimal.Zero, TermMonths: 12, Method: sales.MethodFrench},
			expectedCode: "INVALID_PRINCIPAL",
		},
		{
			name:         "zero term",
			input:        sales.ScheduleInput{Principal: dec("1000"), TermMonths: 0, Method: sales.MethodFrench},
			expectedCode: "INVALID_TERM",
		},
		{
			name:         "negative rate",
			input:        sales.ScheduleInput{Principal: dec("1000"), AnnualRate: dec("-1"), TermMonths: 12, Method: sales.MethodFrench},
			expectedCode: "INVALID_RATE",
		},
		{
			name:         "unknown method",
			input:        sales.ScheduleInput{Principal: dec("1000"), TermMonths: 12, Method: "americano"},
			expectedCode: "INVALID_METHOD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sales.GenerateSchedule(tt.input)
			require.Error(t, err)
			assertDomainCode(t, err, tt.expectedCode)
		})
	}
}

func TestAddMonths_ClampsToMonthEnd(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), sales.AddMonths(jan31, 1))
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), sales.AddMonths(jan31, 2))
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), sales.AddMonths(jan31, 13))
}
