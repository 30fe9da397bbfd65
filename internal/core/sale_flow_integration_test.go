package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cafepos/internal/core"
)

func newSaleFixtures(t *testing.T) (*pgxpool.Pool, context.Context, core.SaleService, core.InvoiceService, core.StockService) {
	t.Helper()
	pool, ctx := setupTestDB(t)
	stock := core.NewStockService(pool)
	sales := core.NewSaleService(pool)
	posAccount := 1
	invoices := core.NewInvoiceService(pool, stock, core.NopPublisher{}, decimal.Zero, &posAccount)
	return pool, ctx, sales, invoices, stock
}

func TestSale_PartialPaymentAutoClose(t *testing.T) {
	pool, ctx, sales, invoices, _ := newSaleFixtures(t)

	latteProduct := seedProduct(t, ctx, pool, "Latte", core.ProductSellable, false)
	latte := seedMenuItem(t, ctx, pool, latteProduct, "Latte", "100")

	tableID := 1
	sale, err := sales.OpenSale(ctx, cashierActor, core.SaleDineIn, &tableID, nil, []core.SaleItemInput{
		{MenuItemID: latte, Quantity: mustDec("1")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	if !sale.TotalAmount.Equal(mustDec("100")) {
		t.Fatalf("sale total = %s, want 100", sale.TotalAmount)
	}

	invoice, err := invoices.InitiateInvoice(ctx, cashierActor, sale.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}
	if invoice.Status != core.InvoiceUnpaid || !invoice.TotalAmount.Equal(mustDec("100")) {
		t.Fatalf("fresh invoice = %s %s, want UNPAID 100", invoice.Status, invoice.TotalAmount)
	}
	if !strings.HasPrefix(invoice.Number, "INV-") {
		t.Errorf("invoice number %q lacks the INV- prefix", invoice.Number)
	}

	// Re-initiating returns the same live invoice.
	again, err := invoices.InitiateInvoice(ctx, cashierActor, sale.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("second InitiateInvoice failed: %v", err)
	}
	if again.ID != invoice.ID {
		t.Errorf("live invoice must be returned unchanged, got id %d want %d", again.ID, invoice.ID)
	}

	if _, err := invoices.ProcessPayment(ctx, cashierActor, invoice.ID, core.PayCash, mustDec("60"), decimal.Zero, nil); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	mid, err := invoices.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if mid.Status != core.InvoicePartiallyPaid {
		t.Errorf("after 60/100 the invoice should be PARTIALLY_PAID, got %s", mid.Status)
	}
	openSale, err := sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if openSale.State != core.SaleOpen {
		t.Errorf("partially paid sale must stay OPEN, got %s", openSale.State)
	}

	// POS payment without an explicit destination falls back to the default
	// account; full payment closes the sale with the payer as closer.
	if _, err := invoices.ProcessPayment(ctx, managerActor, invoice.ID, core.PayPOS, mustDec("40"), mustDec("5"), nil); err != nil {
		t.Fatalf("second payment failed: %v", err)
	}
	paid, err := invoices.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if paid.Status != core.InvoicePaidStatus {
		t.Errorf("fully paid invoice should be PAID, got %s", paid.Status)
	}
	closedSale, err := sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if closedSale.State != core.SaleClosed {
		t.Errorf("fully paid sale should auto-close, got %s", closedSale.State)
	}
	if closedSale.ClosedByID == nil || *closedSale.ClosedByID != managerActor.ID {
		t.Errorf("closer should be the last payer")
	}
}

func TestSale_OverpaymentRejected(t *testing.T) {
	pool, ctx, sales, invoices, _ := newSaleFixtures(t)

	teaProduct := seedProduct(t, ctx, pool, "Tea", core.ProductSellable, false)
	tea := seedMenuItem(t, ctx, pool, teaProduct, "Tea", "50")

	sale, err := sales.OpenSale(ctx, cashierActor, core.SaleTakeaway, nil, nil, []core.SaleItemInput{
		{MenuItemID: tea, Quantity: mustDec("1")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	invoice, err := invoices.InitiateInvoice(ctx, cashierActor, sale.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}

	_, err = invoices.ProcessPayment(ctx, cashierActor, invoice.ID, core.PayCash, mustDec("51"), decimal.Zero, nil)
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("payment above the total must be rejected, got %v", err)
	}
}

func TestInvoice_VoidBlockedByCompletedPayment(t *testing.T) {
	pool, ctx, sales, invoices, _ := newSaleFixtures(t)

	cakeProduct := seedProduct(t, ctx, pool, "Cake", core.ProductSellable, false)
	cake := seedMenuItem(t, ctx, pool, cakeProduct, "Cake", "50")

	sale, err := sales.OpenSale(ctx, cashierActor, core.SaleTakeaway, nil, nil, []core.SaleItemInput{
		{MenuItemID: cake, Quantity: mustDec("1")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	invoice, err := invoices.InitiateInvoice(ctx, cashierActor, sale.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}
	payment, err := invoices.ProcessPayment(ctx, cashierActor, invoice.ID, core.PayCash, mustDec("50"), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}

	_, err = invoices.CancelInvoice(ctx, managerActor, invoice.ID, "customer left")
	if !errors.Is(err, core.ErrHasCompletedPayments) {
		t.Fatalf("expected ErrHasCompletedPayments, got %v", err)
	}

	refund, err := invoices.Refund(ctx, managerActor, payment.ID, mustDec("50"), core.PayCash)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if refund.Status != core.PaymentCompleted {
		t.Errorf("refund status = %s, want COMPLETED", refund.Status)
	}

	// Fully refunded: net zero, demoted from PAID but never auto-voided.
	demoted, err := invoices.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if demoted.Status != core.InvoicePartiallyPaid {
		t.Errorf("fully refunded invoice should demote to PARTIALLY_PAID, got %s", demoted.Status)
	}

	voided, err := invoices.CancelInvoice(ctx, managerActor, invoice.ID, "customer left")
	if err != nil {
		t.Fatalf("CancelInvoice after refund failed: %v", err)
	}
	if voided.Status != core.InvoiceVoidStatus {
		t.Errorf("cancelled invoice should be VOID, got %s", voided.Status)
	}

	// The sale itself survives cancellation; the invoice auto-closed it when
	// it reached PAID, so it is CLOSED, not VOID.
	after, err := sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if after.State == core.SaleVoid {
		t.Errorf("cancelling the invoice must not void the sale")
	}
}

func TestRefund_CapsPerPayment(t *testing.T) {
	pool, ctx, sales, invoices, _ := newSaleFixtures(t)

	pieProduct := seedProduct(t, ctx, pool, "Pie", core.ProductSellable, false)
	pie := seedMenuItem(t, ctx, pool, pieProduct, "Pie", "80")

	sale, err := sales.OpenSale(ctx, cashierActor, core.SaleTakeaway, nil, nil, []core.SaleItemInput{
		{MenuItemID: pie, Quantity: mustDec("1")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	invoice, err := invoices.InitiateInvoice(ctx, cashierActor, sale.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}
	payment, err := invoices.ProcessPayment(ctx, cashierActor, invoice.ID, core.PayCash, mustDec("30"), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}

	_, err = invoices.Refund(ctx, managerActor, payment.ID, mustDec("10"), core.PaymentMethod("VOUCHER"))
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("unknown refund method must be rejected, got %v", err)
	}

	if _, err := invoices.Refund(ctx, managerActor, payment.ID, mustDec("20"), core.PayCash); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	_, err = invoices.Refund(ctx, managerActor, payment.ID, mustDec("20"), core.PayCash)
	if !errors.Is(err, core.ErrRefundExceeded) {
		t.Fatalf("refunds above the payment's applied amount must fail, got %v", err)
	}
}

func TestSale_MaterialCostResolvedOnPayment(t *testing.T) {
	pool, ctx, sales, invoices, stock := newSaleFixtures(t)

	sandwichProduct := seedProduct(t, ctx, pool, "Sandwich", core.ProductSellable, true)
	sandwich := seedMenuItem(t, ctx, pool, sandwichProduct, "Sandwich", "25")

	if _, err := stock.AddLot(ctx, sandwichProduct, nil, mustDec("10"), mustDec("9")); err != nil {
		t.Fatalf("AddLot failed: %v", err)
	}

	sale, err := sales.OpenSale(ctx, cashierActor, core.SaleTakeaway, nil, nil, []core.SaleItemInput{
		{MenuItemID: sandwich, Quantity: mustDec("2")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	invoice, err := invoices.InitiateInvoice(ctx, cashierActor, sale.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}
	if _, err := invoices.ProcessPayment(ctx, cashierActor, invoice.ID, core.PayCash, invoice.TotalAmount, decimal.Zero, nil); err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}

	paidSale, err := sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if len(paidSale.Items) != 1 || paidSale.Items[0].MaterialCost == nil {
		t.Fatal("paying the invoice must fix the material cost")
	}
	if !paidSale.Items[0].MaterialCost.Equal(mustDec("18")) {
		t.Errorf("material cost = %s, want 18 (2 @ 9)", *paidSale.Items[0].MaterialCost)
	}
	if !currentStock(t, ctx, stock, sandwichProduct).Equal(mustDec("8")) {
		t.Errorf("stock should be drained to 8")
	}
}

func TestSale_ExplicitCloseThenPayResolvesCosts(t *testing.T) {
	pool, ctx, sales, invoices, stock := newSaleFixtures(t)

	bagelProduct := seedProduct(t, ctx, pool, "Bagel", core.ProductSellable, true)
	bagel := seedMenuItem(t, ctx, pool, bagelProduct, "Bagel", "20")

	if _, err := stock.AddLot(ctx, bagelProduct, nil, mustDec("10"), mustDec("6")); err != nil {
		t.Fatalf("AddLot failed: %v", err)
	}

	sale, err := sales.OpenSale(ctx, cashierActor, core.SaleTakeaway, nil, nil, []core.SaleItemInput{
		{MenuItemID: bagel, Quantity: mustDec("2")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	invoice, err := invoices.InitiateInvoice(ctx, cashierActor, sale.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}

	// The table closes before the customer settles up at the register.
	if _, err := sales.CloseSale(ctx, managerActor, sale.ID); err != nil {
		t.Fatalf("CloseSale failed: %v", err)
	}

	if _, err := invoices.ProcessPayment(ctx, cashierActor, invoice.ID, core.PayCash, invoice.TotalAmount, decimal.Zero, nil); err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}

	// Paying a CLOSED sale's invoice must still drain stock and fix costs.
	paidSale, err := sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if len(paidSale.Items) != 1 || paidSale.Items[0].MaterialCost == nil {
		t.Fatal("paying a closed sale's invoice must resolve the material cost")
	}
	if !paidSale.Items[0].MaterialCost.Equal(mustDec("12")) {
		t.Errorf("material cost = %s, want 12 (2 @ 6)", *paidSale.Items[0].MaterialCost)
	}
	if !currentStock(t, ctx, stock, bagelProduct).Equal(mustDec("8")) {
		t.Errorf("stock should be drained to 8")
	}

	// The explicit closer is kept; full payment must not re-close the sale.
	if paidSale.State != core.SaleClosed {
		t.Errorf("sale state = %s, want CLOSED", paidSale.State)
	}
	if paidSale.ClosedByID == nil || *paidSale.ClosedByID != managerActor.ID {
		t.Errorf("closer should stay the explicit closer, not the payer")
	}
}

func TestSale_CancelVoidsLiveInvoice(t *testing.T) {
	pool, ctx, sales, invoices, _ := newSaleFixtures(t)

	sconeProduct := seedProduct(t, ctx, pool, "Scone", core.ProductSellable, false)
	scone := seedMenuItem(t, ctx, pool, sconeProduct, "Scone", "15")

	sale, err := sales.OpenSale(ctx, cashierActor, core.SaleTakeaway, nil, nil, []core.SaleItemInput{
		{MenuItemID: scone, Quantity: mustDec("1")},
	})
	if err != nil {
		t.Fatalf("OpenSale failed: %v", err)
	}
	invoice, err := invoices.InitiateInvoice(ctx, cashierActor, sale.ID, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("InitiateInvoice failed: %v", err)
	}

	voided, err := sales.CancelSale(ctx, managerActor, sale.ID)
	if err != nil {
		t.Fatalf("CancelSale failed: %v", err)
	}
	if voided.State != core.SaleVoid {
		t.Errorf("cancelled sale should be VOID, got %s", voided.State)
	}
	inv, err := invoices.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if inv.Status != core.InvoiceVoidStatus {
		t.Errorf("cancelling the sale must void its live invoice, got %s", inv.Status)
	}

	// A VOID invoice accepts no further payments.
	_, err = invoices.ProcessPayment(ctx, cashierActor, invoice.ID, core.PayCash, mustDec("15"), decimal.Zero, nil)
	if !errors.Is(err, core.ErrInvoiceVoid) {
		t.Fatalf("expected ErrInvoiceVoid, got %v", err)
	}
}
