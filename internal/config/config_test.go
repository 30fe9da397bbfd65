package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PURCHASE_PRICE_DEVIATION_RATIO", "")
	t.Setenv("TAX_RATE", "")
	t.Setenv("SERVER_PORT", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if !cfg.PurchasePriceDeviationRatio.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("expected default deviation ratio 0.3, got %s", cfg.PurchasePriceDeviationRatio)
	}
	if !cfg.TaxRate.IsZero() {
		t.Fatalf("expected default tax rate 0, got %s", cfg.TaxRate)
	}
	if cfg.DefaultPOSAccountID != nil {
		t.Fatalf("expected no default POS account when unset, got %d", *cfg.DefaultPOSAccountID)
	}
}

func TestLoadRejectsOutOfRangeRatios(t *testing.T) {
	t.Setenv("PURCHASE_PRICE_DEVIATION_RATIO", "1.5")
	t.Setenv("TAX_RATE", "99")
	t.Setenv("PROFIT_MARGIN", "garbage")

	cfg := Load()
	if !cfg.PurchasePriceDeviationRatio.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("ratio above 1 should fall back to default, got %s", cfg.PurchasePriceDeviationRatio)
	}
	if !cfg.TaxRate.IsZero() {
		t.Fatalf("tax rate of 99 is out of range and should fall back to 0, got %s", cfg.TaxRate)
	}
	if !cfg.ProfitMargin.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unparseable margin should fall back to 40, got %s", cfg.ProfitMargin)
	}
}

func TestLoadParsesPOSAccount(t *testing.T) {
	t.Setenv("DEFAULT_POS_ACCOUNT_ID", "7")

	cfg := Load()
	if cfg.DefaultPOSAccountID == nil || *cfg.DefaultPOSAccountID != 7 {
		t.Fatalf("expected POS account 7, got %v", cfg.DefaultPOSAccountID)
	}
}
