package core

// Actor is the authenticated caller as handed in by the outer layers. The
// core never sees credentials or tokens, only the resolved identity.
type Actor struct {
	ID          int      `json:"id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
}

// Permission names consulted by the application facade. The set is open to
// extension; unknown names simply never match.
type Permission string

const (
	PermOpenSale      Permission = "sale.open_sale"
	PermCloseSale     Permission = "sale.close_sale"
	PermCreateInvoice Permission = "sale.create_invoice"
	PermIssuePayment  Permission = "sale.issue_payment"
	PermCancelInvoice Permission = "sale.cancel_invoice"
	PermProcessRefund Permission = "sale.process_refund"
	PermViewItemCost  Permission = "sale.view_item_cost"
)

// Authorizer answers permission checks for an actor. Implementations live
// outside the core; StaticAuthorizer covers wiring and tests.
type Authorizer interface {
	Has(actor Actor, perm Permission) bool
}

// StaticAuthorizer grants permissions from a fixed role → permission map.
// Superusers pass every check.
type StaticAuthorizer struct {
	Grants map[string][]Permission
}

func (a StaticAuthorizer) Has(actor Actor, perm Permission) bool {
	if actor.IsSuperuser {
		return true
	}
	for _, role := range actor.Roles {
		for _, granted := range a.Grants[role] {
			if granted == perm {
				return true
			}
		}
	}
	return false
}

// DefaultGrants is the role map wired by cmd/server: cashiers run the sale
// flow, managers additionally cancel invoices, refund, and see item costs.
func DefaultGrants() map[string][]Permission {
	return map[string][]Permission{
		"cashier": {
			PermOpenSale, PermCloseSale, PermCreateInvoice, PermIssuePayment,
		},
		"manager": {
			PermOpenSale, PermCloseSale, PermCreateInvoice, PermIssuePayment,
			PermCancelInvoice, PermProcessRefund, PermViewItemCost,
		},
	}
}
