package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"cafepos/internal/cache"
	"cafepos/internal/core"
)

const (
	maxRetryAttempts = 3
	retryBaseDelay   = 25 * time.Millisecond

	// pastReportTTL is how long finished days stay in the cache. Past
	// reports are immutable unless an operator recomputes them.
	pastReportTTL = 72 * time.Hour
)

type appService struct {
	sales       core.SaleService
	invoices    core.InvoiceService
	purchases   core.PurchaseService
	recipes     core.RecipeService
	adjustments core.AdjustmentService
	reports     core.ReportingService
	authorizer  core.Authorizer
	reportCache cache.ReportCache
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	sales core.SaleService,
	invoices core.InvoiceService,
	purchases core.PurchaseService,
	recipes core.RecipeService,
	adjustments core.AdjustmentService,
	reports core.ReportingService,
	authorizer core.Authorizer,
	reportCache cache.ReportCache,
) ApplicationService {
	if reportCache == nil {
		reportCache = cache.NopReportCache{}
	}
	return &appService{
		sales:       sales,
		invoices:    invoices,
		purchases:   purchases,
		recipes:     recipes,
		adjustments: adjustments,
		reports:     reports,
		authorizer:  authorizer,
		reportCache: reportCache,
	}
}

func (s *appService) require(actor core.Actor, perm core.Permission) error {
	if !s.authorizer.Has(actor, perm) {
		return fmt.Errorf("%w: %s lacks %s", core.ErrForbidden, actor.Username, perm)
	}
	return nil
}

// withRetry reruns fn on serialization and lock-timeout failures with jittered
// backoff. Business errors pass through on the first attempt.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<attempt)
			delay += time.Duration(rand.Int63n(int64(retryBaseDelay)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !core.IsRetryable(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// ── Sales ────────────────────────────────────────────────────────────────────

func (s *appService) OpenSale(ctx context.Context, actor core.Actor, req OpenSaleRequest) (*core.Sale, error) {
	if err := s.require(actor, core.PermOpenSale); err != nil {
		return nil, err
	}
	return withRetry(ctx, func() (*core.Sale, error) {
		return s.sales.OpenSale(ctx, actor, req.Type, req.TableID, req.GuestCount, req.Items)
	})
}

func (s *appService) AddSaleItems(ctx context.Context, actor core.Actor, saleID int, items []core.SaleItemInput) (*core.Sale, error) {
	if err := s.require(actor, core.PermOpenSale); err != nil {
		return nil, err
	}
	return withRetry(ctx, func() (*core.Sale, error) {
		return s.sales.AddItems(ctx, saleID, items)
	})
}

func (s *appService) CloseSale(ctx context.Context, actor core.Actor, saleID int) (*core.Sale, error) {
	if err := s.require(actor, core.PermCloseSale); err != nil {
		return nil, err
	}
	return withRetry(ctx, func() (*core.Sale, error) {
		return s.sales.CloseSale(ctx, actor, saleID)
	})
}

func (s *appService) CancelSale(ctx context.Context, actor core.Actor, saleID int) (*core.Sale, error) {
	if err := s.require(actor, core.PermCancelInvoice); err != nil {
		return nil, err
	}
	return withRetry(ctx, func() (*core.Sale, error) {
		return s.sales.CancelSale(ctx, actor, saleID)
	})
}

func (s *appService) GetSale(ctx context.Context, actor core.Actor, saleID int) (*core.Sale, error) {
	sale, err := s.sales.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.Has(actor, core.PermViewItemCost) {
		for i := range sale.Items {
			sale.Items[i].MaterialCost = nil
		}
	}
	return sale, nil
}

// ── Invoices & payments ──────────────────────────────────────────────────────

func (s *appService) InitiateInvoice(ctx context.Context, actor core.Actor, req InitiateInvoiceRequest) (*core.SaleInvoice, error) {
	if err := s.require(actor, core.PermCreateInvoice); err != nil {
		return nil, err
	}
	return withRetry(ctx, func() (*core.SaleInvoice, error) {
		return s.invoices.InitiateInvoice(ctx, actor, req.SaleID, req.DiscountAmount, req.TaxAmount)
	})
}

func (s *appService) ProcessPayment(ctx context.Context, actor core.Actor, req ProcessPaymentRequest) (*core.SalePayment, error) {
	if err := s.require(actor, core.PermIssuePayment); err != nil {
		return nil, err
	}
	return withRetry(ctx, func() (*core.SalePayment, error) {
		return s.invoices.ProcessPayment(ctx, actor, req.InvoiceID, req.Method,
			req.AmountApplied, req.TipAmount, req.DestinationAccountID)
	})
}

func (s *appService) Refund(ctx context.Context, actor core.Actor, req RefundRequest) (*core.SaleRefund, error) {
	if err := s.require(actor, core.PermProcessRefund); err != nil {
		return nil, err
	}
	return withRetry(ctx, func() (*core.SaleRefund, error) {
		return s.invoices.Refund(ctx, actor, req.PaymentID, req.Amount, req.Method)
	})
}

func (s *appService) CancelInvoice(ctx context.Context, actor core.Actor, invoiceID int, reason string) (*core.SaleInvoice, error) {
	if err := s.require(actor, core.PermCancelInvoice); err != nil {
		return nil, err
	}
	return withRetry(ctx, func() (*core.SaleInvoice, error) {
		return s.invoices.CancelInvoice(ctx, actor, invoiceID, reason)
	})
}

func (s *appService) GetInvoice(ctx context.Context, actor core.Actor, invoiceID int) (*core.SaleInvoice, error) {
	return s.invoices.GetInvoice(ctx, invoiceID)
}

// ── Purchasing, production, adjustments ──────────────────────────────────────

func (s *appService) RecordPurchase(ctx context.Context, actor core.Actor, req RecordPurchaseRequest) (*core.PurchaseInvoice, error) {
	issueDate := req.IssueDate
	if issueDate == "" {
		issueDate = time.Now().Format("2006-01-02")
	}
	return withRetry(ctx, func() (*core.PurchaseInvoice, error) {
		return s.purchases.RecordPurchase(ctx, actor, issueDate, req.SupplierID, req.DiscountAmount, req.Lines)
	})
}

func (s *appService) ReturnPurchaseItem(ctx context.Context, actor core.Actor, purchaseItemID int, quantity Quantity) (*core.PurchaseReturn, error) {
	return withRetry(ctx, func() (*core.PurchaseReturn, error) {
		return s.purchases.ReturnPurchaseItem(ctx, actor, purchaseItemID, quantity)
	})
}

func (s *appService) ProduceItem(ctx context.Context, actor core.Actor, req ProduceItemRequest) (*core.ItemProduction, error) {
	return withRetry(ctx, func() (*core.ItemProduction, error) {
		return s.recipes.Produce(ctx, actor, req.RecipeID, req.OutputQuantity, req.CooperatorIDs)
	})
}

func (s *appService) AdjustStock(ctx context.Context, actor core.Actor, productID int, currentQuantity Quantity) (*core.ProductAdjustmentReport, error) {
	return withRetry(ctx, func() (*core.ProductAdjustmentReport, error) {
		return s.adjustments.AdjustStock(ctx, actor, productID, currentQuantity)
	})
}

// ── Reporting ────────────────────────────────────────────────────────────────

func (s *appService) DailyReport(ctx context.Context, reportDate string, reported core.ReportedTotals) (*core.DailyFinancialReport, error) {
	report, err := withRetry(ctx, func() (*core.DailyFinancialReport, error) {
		return s.reports.DailyReport(ctx, reportDate, reported)
	})
	if err != nil {
		return nil, err
	}
	// Recomputing replaces whatever the cache held for that date.
	_ = s.reportCache.Invalidate(ctx, report.ReportDate)
	if isPastDate(report.ReportDate) {
		_ = s.reportCache.Set(ctx, report, pastReportTTL)
	}
	return report, nil
}

func (s *appService) GetDailyReport(ctx context.Context, reportDate string) (*core.DailyFinancialReport, error) {
	if isPastDate(reportDate) {
		if cached, ok, err := s.reportCache.Get(ctx, reportDate); err == nil && ok {
			return cached, nil
		}
	}
	report, err := s.reports.GetDailyReport(ctx, reportDate)
	if err != nil {
		return nil, err
	}
	if isPastDate(report.ReportDate) {
		_ = s.reportCache.Set(ctx, report, pastReportTTL)
	}
	return report, nil
}

func isPastDate(reportDate string) bool {
	d, err := time.Parse("2006-01-02", reportDate)
	if err != nil {
		return false
	}
	return d.Format("2006-01-02") < time.Now().Format("2006-01-02")
}
