package inventory

import "time"

// Item is a stocked medicine or supply.
type Item struct {
	ID          string `json:"id,omitempty"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"minQuantity"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	Warehouse   string `json:"warehouse,omitempty"`
}

// LowStock reports whether the item is at or below its reorder level.
func (i Item) LowStock() bool {
	return i.Quantity <= i.MinQuantity
}

// Shortfall is how many units are needed to get back above the reorder level.
func (i Item) Shortfall() int {
	if !i.LowStock() {
		return 0
	}
	return i.MinQuantity - i.Quantity + 1
}

// TransactionKind is the direction of a stock movement.
type TransactionKind string

const (
	KindImport TransactionKind = "import"
	KindExport TransactionKind = "export"
)

// Line is one item moved by a transaction.
type Line struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	Lot      string `json:"lot,omitempty"`
}

// Transaction is an import or export of stock.
type Transaction struct {
	ID        string          `json:"id,omitempty"`
	Kind      TransactionKind `json:"kind"`
	Lines     []Line          `json:"lines"`
	Supplier  string          `json:"supplier,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedBy string          `json:"createdBy,omitempty"`
	CreatedAt time.Time       `json:"createdAt,omitempty"`
}
