package pricing

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beaver_gateway/internal/models"
	"beaver_gateway/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decs(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = dec(v)
	}
	return out
}

func TestComputePercentiles(t *testing.T) {
	t.Run("linear interpolation over 1..10", func(t *testing.T) {
		p := computePercentiles(decs("1", "2", "3", "4", "5", "6", "7", "8", "9", "10"))

		assert.True(t, p.p20.Equal(dec("2.8")), "p20 = %s", p.p20)
		assert.True(t, p.p40.Equal(dec("4.6")), "p40 = %s", p.p40)
		assert.True(t, p.p60.Equal(dec("6.4")), "p60 = %s", p.p60)
		assert.True(t, p.p80.Equal(dec("8.2")), "p80 = %s", p.p80)
	})

	t.Run("single model collapses all boundaries", func(t *testing.T) {
		p := computePercentiles(decs("5"))

		assert.True(t, p.p20.Equal(dec("5")))
		assert.True(t, p.p80.Equal(dec("5")))
	})

	t.Run("input order does not matter", func(t *testing.T) {
		a := computePercentiles(decs("10", "1", "7", "4"))
		b := computePercentiles(decs("1", "4", "7", "10"))

		assert.True(t, a.p20.Equal(b.p20))
		assert.True(t, a.p60.Equal(b.p60))
	})
}

func TestAssignCategory(t *testing.T) {
	p := percentiles{p20: dec("2"), p40: dec("4"), p60: dec("6"), p80: dec("8")}

	tests := []struct {
		name string
		cost string
		want models.Category
	}{
		{"below p20", "1", models.CategoryUltraBudget},
		{"exactly p20 belongs to cheaper band", "2", models.CategoryUltraBudget},
		{"between p20 and p40", "3", models.CategoryBudget},
		{"exactly p40", "4", models.CategoryBudget},
		{"between p40 and p60", "5", models.CategoryMidRange},
		{"exactly p80", "8", models.CategoryPremium},
		{"above p80", "9", models.CategoryUltraPremium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assignCategory(dec(tt.cost), p))
		})
	}
}

func TestApplyMarkup(t *testing.T) {
	// 3.00 per 1M at 5.5% markup.
	assert.True(t, applyMarkup(dec("3"), dec("5.5")).Equal(dec("3.165")))
	// 0.15 per 1M at 10% markup.
	assert.True(t, applyMarkup(dec("0.15"), dec("10")).Equal(dec("0.165")))
	// Rounds to six decimal places.
	assert.True(t, applyMarkup(dec("0.0000001"), dec("10")).Equal(dec("0")))
}

func TestCostWithPrices(t *testing.T) {
	t.Run("charges per 1M tokens", func(t *testing.T) {
		// 1000 input at $3/1M and 500 output at $15/1M.
		cost := CostWithPrices(1000, 500, dec("3"), dec("15"))
		assert.True(t, cost.Equal(dec("0.0105")), "cost = %s", cost)
	})

	t.Run("zero tokens cost nothing", func(t *testing.T) {
		assert.True(t, CostWithPrices(0, 0, dec("3"), dec("15")).IsZero())
	})

	t.Run("rounds to eight decimal places", func(t *testing.T) {
		cost := CostWithPrices(1, 0, dec("3"), dec("15"))
		assert.True(t, cost.Equal(dec("0.000003")), "cost = %s", cost)
	})
}

func newEngineWithMock(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db := storage.NewDBFromConn(sqlx.NewDb(conn, "postgres"), storage.DefaultDBConfig())
	return NewEngine(db.NewModelRepository()), mock
}

func activeModelRows(prices ...[2]string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "name", "display_name", "provider", "status",
		"base_input_price", "base_output_price",
		"category", "markup_percent", "effective_input_price", "effective_output_price",
		"pricing_updated_at", "created_at", "updated_at",
	})
	now := time.Now()
	for i, p := range prices {
		rows.AddRow(
			models.NewModelID(), string(rune('a'+i)), "", "mock", "active",
			p[0], p[1], nil, nil, nil, nil, nil, now, now)
	}
	return rows
}

func TestRecalculateAllPricing(t *testing.T) {
	t.Run("no active models", func(t *testing.T) {
		engine, mock := newEngineWithMock(t)

		mock.ExpectQuery(`SELECT (.+) FROM models WHERE status = \$1`).
			WillReturnRows(activeModelRows())

		_, err := engine.RecalculateAllPricing(context.Background())
		assert.ErrorIs(t, err, ErrNoActiveModels)
	})

	t.Run("updates every active model in one transaction", func(t *testing.T) {
		engine, mock := newEngineWithMock(t)

		mock.ExpectQuery(`SELECT (.+) FROM models WHERE status = \$1`).
			WillReturnRows(activeModelRows(
				[2]string{"0.15", "0.6"},
				[2]string{"3", "15"},
				[2]string{"0.5", "1.5"},
			))
		mock.ExpectBegin()
		for i := 0; i < 3; i++ {
			mock.ExpectExec(`UPDATE models`).WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()

		result, err := engine.RecalculateAllPricing(context.Background())
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())

		assert.Equal(t, 3, result.TotalModels)
		assert.False(t, result.UpdatedAt.IsZero())
		// Total base costs are 0.75, 2, 18; boundaries interpolate between them.
		assert.True(t, result.Percentiles.P20.Equal(dec("1.25")), "p20 = %s", result.Percentiles.P20)
		assert.True(t, result.Percentiles.P80.Equal(dec("11.6")), "p80 = %s", result.Percentiles.P80)
	})
}

func TestCostForRequest(t *testing.T) {
	t.Run("model without effective pricing", func(t *testing.T) {
		engine, mock := newEngineWithMock(t)

		mock.ExpectQuery(`SELECT (.+) FROM models WHERE name = \$1`).
			WillReturnRows(activeModelRows([2]string{"3", "15"}))

		_, err := engine.CostForRequest(context.Background(), "a", 1000, 500)
		assert.ErrorIs(t, err, ErrPricingNotAvailable)
	})

	t.Run("unknown model", func(t *testing.T) {
		engine, mock := newEngineWithMock(t)

		mock.ExpectQuery(`SELECT (.+) FROM models WHERE name = \$1`).
			WillReturnRows(activeModelRows())

		_, err := engine.CostForRequest(context.Background(), "ghost", 1, 1)
		assert.ErrorIs(t, err, storage.ErrModelNotFound)
	})
}
