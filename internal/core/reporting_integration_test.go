package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/internal/core"
)

func TestDailyReport_ReconcilesTheDay(t *testing.T) {
	pool, ctx, sales, invoices, stock := newSaleFixtures(t)
	purchases := core.NewPurchaseService(pool, stock, decimal.Zero)
	reports := core.NewReportingService(pool)

	today := time.Now().Format("2006-01-02")

	sandwichProduct := seedProduct(t, ctx, pool, "Sandwich", core.ProductSellable, true)
	sandwich := seedMenuItem(t, ctx, pool, sandwichProduct, "Sandwich", "30")
	if _, err := stock.AddLot(ctx, sandwichProduct, nil, mustDec("10"), mustDec("4")); err != nil {
		t.Fatalf("AddLot failed: %v", err)
	}

	// First sale: 2 × 30 fully paid in cash, then 10 refunded.
	first, err := sales.OpenSale(ctx, cashierActor, core.SaleTakeaway, nil, nil, []core.SaleItemInput{
		{MenuItemID: sandwich, Quantity: mustDec("2")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	firstInvoice, err := invoices.InitiateInvoice(ctx, cashierActor, first.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}
	cashPayment, err := invoices.ProcessPayment(ctx, cashierActor, firstInvoice.ID, core.PayCash, mustDec("60"), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	if _, err := invoices.Refund(ctx, managerActor, cashPayment.ID, mustDec("10"), core.PayCash); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	// Second sale: 30 invoiced, only 20 taken on the POS terminal.
	second, err := sales.OpenSale(ctx, cashierActor, core.SaleTakeaway, nil, nil, []core.SaleItemInput{
		{MenuItemID: sandwich, Quantity: mustDec("1")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	secondInvoice, err := invoices.InitiateInvoice(ctx, cashierActor, second.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}
	if _, err := invoices.ProcessPayment(ctx, cashierActor, secondInvoice.ID, core.PayPOS, mustDec("20"), decimal.Zero, nil); err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}

	// One supplier delivery booked on the same day.
	beans := seedProduct(t, ctx, pool, "Beans", core.ProductRaw, true)
	if _, err := purchases.RecordPurchase(ctx, cashierActor, today, nil, decimal.Zero,
		[]core.PurchaseLineInput{
			{ProductID: beans, Quantity: mustDec("5"), UnitPrice: decp("2")},
		}); err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}

	report, err := reports.DailyReport(ctx, today, core.ReportedTotals{
		POS:          mustDec("20"),
		Cash:         mustDec("55"),
		CardTransfer: decimal.Zero,
		MiscExpenses: mustDec("5"),
	})
	if err != nil {
		t.Fatalf("DailyReport failed: %v", err)
	}

	// Invoiced 60 + 30 minus the 10 refund.
	if !report.TotalRevenue.Equal(mustDec("80")) {
		t.Errorf("total revenue = %s, want 80", report.TotalRevenue)
	}
	if !report.CashTotal.Equal(mustDec("60")) || !report.POSTotal.Equal(mustDec("20")) {
		t.Errorf("channel totals = cash %s / pos %s, want 60 / 20", report.CashTotal, report.POSTotal)
	}
	// Only the first sale closed, so its 2 × 4 material cost is the day's COGS.
	if !report.TotalCOGS.Equal(mustDec("8")) {
		t.Errorf("COGS = %s, want 8", report.TotalCOGS)
	}
	if !report.PurchaseExpenses.Equal(mustDec("10")) {
		t.Errorf("purchase expenses = %s, want 10", report.PurchaseExpenses)
	}
	// 80 − 60 − 20 = 0: the refund explains the shortfall against the invoices.
	if !report.PaymentDiscrepancy.IsZero() {
		t.Errorf("payment discrepancy = %s, want 0", report.PaymentDiscrepancy)
	}
	// Drawer counted 55 against 60 ledgered cash.
	if !report.CashDiscrepancy.Equal(mustDec("-5")) {
		t.Errorf("cash discrepancy = %s, want -5", report.CashDiscrepancy)
	}
	if !report.POSDiscrepancy.IsZero() {
		t.Errorf("pos discrepancy = %s, want 0", report.POSDiscrepancy)
	}
	// 80 − 8 COGS − 10 purchases − 5 misc.
	if !report.TotalProfit.Equal(mustDec("57")) {
		t.Errorf("total profit = %s, want 57", report.TotalProfit)
	}

	// Recomputing the same date replaces the row in place.
	again, err := reports.DailyReport(ctx, today, core.ReportedTotals{
		POS:  mustDec("20"),
		Cash: mustDec("60"),
	})
	if err != nil {
		t.Fatalf("second DailyReport failed: %v", err)
	}
	if again.ID != report.ID {
		t.Errorf("recompute must keep the row, got id %d want %d", again.ID, report.ID)
	}
	if !again.CashDiscrepancy.IsZero() {
		t.Errorf("recomputed cash discrepancy = %s, want 0", again.CashDiscrepancy)
	}

	stored, err := reports.GetDailyReport(ctx, today)
	if err != nil {
		t.Fatalf("GetDailyReport failed: %v", err)
	}
	if !stored.CashDiscrepancy.IsZero() {
		t.Errorf("stored report should reflect the recompute")
	}
}

func TestDailyReport_InputValidation(t *testing.T) {
	pool, ctx := setupTestDB(t)
	reports := core.NewReportingService(pool)

	_, err := reports.DailyReport(ctx, "31-08-2026", core.ReportedTotals{})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("malformed date should be rejected, got %v", err)
	}

	_, err = reports.DailyReport(ctx, "2026-08-31", core.ReportedTotals{Cash: mustDec("-1")})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("negative reported total should be rejected, got %v", err)
	}

	_, err = reports.GetDailyReport(ctx, "2001-01-01")
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("missing report should surface ErrInvalidInput, got %v", err)
	}
}
