package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// ReportedTotals are the operator-entered closing figures for one day: what
// the POS terminal tape, the cash drawer count and the bank transfer list
// claim was taken. The report measures the ledger against them.
type ReportedTotals struct {
	POS          decimal.Decimal `json:"pos"`
	Cash         decimal.Decimal `json:"cash"`
	CardTransfer decimal.Decimal `json:"card_transfer"`
	MiscExpenses decimal.Decimal `json:"misc_expenses"`
}

// DailyFinancialReport is the end-of-day reconciliation snapshot. One row per
// calendar date; recomputing a date replaces its row.
type DailyFinancialReport struct {
	ID                  int             `json:"id"`
	ReportDate          string          `json:"report_date"`
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	POSTotal            decimal.Decimal `json:"pos_total"`
	CashTotal           decimal.Decimal `json:"cash_total"`
	CardTransferTotal   decimal.Decimal `json:"card_transfer_total"`
	TotalCOGS           decimal.Decimal `json:"total_cogs"`
	PurchaseExpenses    decimal.Decimal `json:"purchase_expenses"`
	MiscExpenses        decimal.Decimal `json:"misc_expenses"`
	PaymentDiscrepancy  decimal.Decimal `json:"payment_discrepancy"`
	POSDiscrepancy      decimal.Decimal `json:"pos_discrepancy"`
	CashDiscrepancy     decimal.Decimal `json:"cash_discrepancy"`
	TransferDiscrepancy decimal.Decimal `json:"transfer_discrepancy"`
	TotalProfit         decimal.Decimal `json:"total_profit"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ── Interface ─────────────────────────────────────────────────────────────────

// ReportingService aggregates the day's invoices, payments, refunds, material
// costs and purchases into the daily reconciliation report. It never mutates
// the operational tables.
type ReportingService interface {
	// DailyReport computes the report for reportDate (YYYY-MM-DD, empty means
	// today) against the operator's reported totals and upserts it. Running it
	// again for the same date replaces the stored row.
	DailyReport(ctx context.Context, reportDate string, reported ReportedTotals) (*DailyFinancialReport, error)

	// GetDailyReport returns the stored report for the date, or ErrInvalidInput
	// if none was generated.
	GetDailyReport(ctx context.Context, reportDate string) (*DailyFinancialReport, error)
}

// ── Implementation ────────────────────────────────────────────────────────────

type reportingService struct {
	pool *pgxpool.Pool
}

func NewReportingService(pool *pgxpool.Pool) ReportingService {
	return &reportingService{pool: pool}
}

func (s *reportingService) DailyReport(ctx context.Context, reportDate string, reported ReportedTotals) (*DailyFinancialReport, error) {
	if reportDate == "" {
		reportDate = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", reportDate); err != nil {
		return nil, fmt.Errorf("%w: report date must be YYYY-MM-DD, got %q", ErrInvalidInput, reportDate)
	}
	for _, v := range []decimal.Decimal{reported.POS, reported.Cash, reported.CardTransfer, reported.MiscExpenses} {
		if v.IsNegative() {
			return nil, fmt.Errorf("%w: reported totals cannot be negative", ErrInvalidInput)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Revenue = invoice totals billed on the date, net of that date's refunds.
	var invoiced, refunded decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM sale_invoices
		WHERE status IN ('PAID', 'PARTIALLY_PAID')
		  AND issued_at::date = $1::date
	`, reportDate).Scan(&invoiced)
	if err != nil {
		return nil, fmt.Errorf("failed to sum invoiced revenue: %w", classifyDBError(err))
	}
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM sale_refunds
		WHERE status = 'COMPLETED' AND created_at::date = $1::date
	`, reportDate).Scan(&refunded)
	if err != nil {
		return nil, fmt.Errorf("failed to sum refunds: %w", classifyDBError(err))
	}
	totalRevenue := invoiced.Sub(refunded)

	var posTotal, cashTotal, transferTotal decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_applied) FILTER (WHERE method = 'POS'), 0),
		       COALESCE(SUM(amount_applied) FILTER (WHERE method = 'CASH'), 0),
		       COALESCE(SUM(amount_applied) FILTER (WHERE method = 'CARD_TRANSFER'), 0)
		FROM sale_payments
		WHERE status = 'COMPLETED' AND created_at::date = $1::date
	`, reportDate).Scan(&posTotal, &cashTotal, &transferTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payment channels: %w", classifyDBError(err))
	}

	// COGS over invoiced sales closed on the date.
	var totalCOGS decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(si.material_cost), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE si.material_cost IS NOT NULL
		  AND s.state = 'CLOSED'
		  AND s.closed_at::date = $1::date
		  AND EXISTS (
		      SELECT 1 FROM sale_invoices i
		      WHERE i.sale_id = s.id AND i.status <> 'VOID'
		  )
	`, reportDate).Scan(&totalCOGS)
	if err != nil {
		return nil, fmt.Errorf("failed to sum material costs: %w", classifyDBError(err))
	}

	var purchaseExpenses decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(invoice_final_cost), 0)
		FROM purchase_invoices
		WHERE issue_date = $1::date
	`, reportDate).Scan(&purchaseExpenses)
	if err != nil {
		return nil, fmt.Errorf("failed to sum purchase expenses: %w", classifyDBError(err))
	}

	paymentDiscrepancy := totalRevenue.Sub(posTotal).Sub(cashTotal).Sub(transferTotal)
	totalProfit := totalRevenue.Sub(totalCOGS).Sub(purchaseExpenses).Sub(reported.MiscExpenses)

	var report DailyFinancialReport
	err = tx.QueryRow(ctx, `
		INSERT INTO daily_financial_reports (
			report_date, total_revenue, pos_total, cash_total, card_transfer_total,
			total_cogs, purchase_expenses, misc_expenses,
			payment_discrepancy, pos_discrepancy, cash_discrepancy, transfer_discrepancy,
			total_profit
		)
		VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (report_date) DO UPDATE SET
			total_revenue = EXCLUDED.total_revenue,
			pos_total = EXCLUDED.pos_total,
			cash_total = EXCLUDED.cash_total,
			card_transfer_total = EXCLUDED.card_transfer_total,
			total_cogs = EXCLUDED.total_cogs,
			purchase_expenses = EXCLUDED.purchase_expenses,
			misc_expenses = EXCLUDED.misc_expenses,
			payment_discrepancy = EXCLUDED.payment_discrepancy,
			pos_discrepancy = EXCLUDED.pos_discrepancy,
			cash_discrepancy = EXCLUDED.cash_discrepancy,
			transfer_discrepancy = EXCLUDED.transfer_discrepancy,
			total_profit = EXCLUDED.total_profit,
			created_at = NOW()
		RETURNING id, report_date::text, total_revenue, pos_total, cash_total, card_transfer_total,
		          total_cogs, purchase_expenses, misc_expenses,
		          payment_discrepancy, pos_discrepancy, cash_discrepancy, transfer_discrepancy,
		          total_profit, created_at
	`, reportDate, totalRevenue, posTotal, cashTotal, transferTotal,
		totalCOGS, purchaseExpenses, reported.MiscExpenses,
		paymentDiscrepancy,
		reported.POS.Sub(posTotal),
		reported.Cash.Sub(cashTotal),
		reported.CardTransfer.Sub(transferTotal),
		totalProfit,
	).Scan(
		&report.ID, &report.ReportDate, &report.TotalRevenue, &report.POSTotal, &report.CashTotal,
		&report.CardTransferTotal, &report.TotalCOGS, &report.PurchaseExpenses, &report.MiscExpenses,
		&report.PaymentDiscrepancy, &report.POSDiscrepancy, &report.CashDiscrepancy,
		&report.TransferDiscrepancy, &report.TotalProfit, &report.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily report: %w", classifyDBError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit daily report: %w", classifyDBError(err))
	}
	return &report, nil
}

func (s *reportingService) GetDailyReport(ctx context.Context, reportDate string) (*DailyFinancialReport, error) {
	var report DailyFinancialReport
	err := s.pool.QueryRow(ctx, `
		SELECT id, report_date::text, total_revenue, pos_total, cash_total, card_transfer_total,
		       total_cogs, purchase_expenses, misc_expenses,
		       payment_discrepancy, pos_discrepancy, cash_discrepancy, transfer_discrepancy,
		       total_profit, created_at
		FROM daily_financial_reports
		WHERE report_date = $1::date
	`, reportDate).Scan(
		&report.ID, &report.ReportDate, &report.TotalRevenue, &report.POSTotal, &report.CashTotal,
		&report.CardTransferTotal, &report.TotalCOGS, &report.PurchaseExpenses, &report.MiscExpenses,
		&report.PaymentDiscrepancy, &report.POSDiscrepancy, &report.CashDiscrepancy,
		&report.TransferDiscrepancy, &report.TotalProfit, &report.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no daily report for %s", ErrInvalidInput, reportDate)
		}
		return nil, fmt.Errorf("failed to fetch daily report for %s: %w", reportDate, err)
	}
	return &report, nil
}
