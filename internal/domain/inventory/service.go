// Package inventory reads pharmacy stock and records stock movements.
package inventory

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/hms/console/internal/domain"
	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/pkg/pagination"
)

const (
	itemsPath        = "/inventory/items"
	transactionsPath = "/inventory/transactions"
)

// scanPageSize is the page size used when walking the whole catalogue.
const scanPageSize = pagination.MaxPageSize

type Service struct {
	api apiclient.Dispatcher
}

func NewService(api apiclient.Dispatcher) *Service {
	return &Service{api: api}
}

func (s *Service) ListItems(ctx context.Context, p pagination.Params, search string) (*pagination.Page[Item], error) {
	q := url.Values{}
	if search = strings.TrimSpace(search); search != "" {
		q.Set("search", search)
	}
	return apiclient.GetPage[Item](ctx, s.api, itemsPath, p, q)
}

func (s *Service) GetItem(ctx context.Context, id string) (*Item, error) {
	if id == "" {
		return nil, domain.Invalidf("item id is required")
	}
	it, err := apiclient.GetAs[Item](ctx, s.api, itemsPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &it, nil
}

// LowStock walks every page of the catalogue and returns the items at or below
// their reorder level, largest shortfall first.
func (s *Service) LowStock(ctx context.Context) ([]Item, error) {
	var low []Item
	p := pagination.Params{PageIndex: 1, PageSize: scanPageSize}
	for {
		page, err := apiclient.GetPage[Item](ctx, s.api, itemsPath, p, nil)
		if err != nil {
			return nil, fmt.Errorf("list items page %d: %w", p.PageIndex, err)
		}
		for _, it := range page.Data {
			if it.LowStock() {
				low = append(low, it)
			}
		}
		if len(page.Data) == 0 || p.PageIndex >= page.TotalPages {
			break
		}
		p.PageIndex++
	}
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].Shortfall() > low[j].Shortfall()
	})
	return low, nil
}

// RecordTransaction validates and submits a stock movement. Exports are
// checked against current stock before anything is sent.
func (s *Service) RecordTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if tx.Kind != KindImport && tx.Kind != KindExport {
		return nil, domain.Invalidf("invalid transaction kind: %s", tx.Kind)
	}
	if len(tx.Lines) == 0 {
		return nil, domain.Invalidf("a transaction needs at least one line")
	}
	totals := make(map[string]int, len(tx.Lines))
	for i, l := range tx.Lines {
		if l.ItemID == "" {
			return nil, domain.Invalidf("line %d: itemId is required", i)
		}
		if l.Quantity <= 0 {
			return nil, domain.Invalidf("line %d: quantity must be positive, got %d", i, l.Quantity)
		}
		totals[l.ItemID] += l.Quantity
	}
	if tx.Kind == KindImport && strings.TrimSpace(tx.Supplier) == "" {
		return nil, domain.Invalidf("supplier is required for an import")
	}

	if tx.Kind == KindExport {
		for id, qty := range totals {
			it, err := s.GetItem(ctx, id)
			if err != nil {
				return nil, err
			}
			if it.Quantity < qty {
				return nil, domain.Invalidf("not enough %s in stock: have %d, need %d", it.Name, it.Quantity, qty)
			}
		}
	}

	created, err := apiclient.PostAs[Transaction](ctx, s.api, transactionsPath, tx)
	if err != nil {
		return nil, fmt.Errorf("record %s transaction: %w", tx.Kind, err)
	}
	return &created, nil
}

func (s *Service) ListTransactions(ctx context.Context, p pagination.Params, kind TransactionKind) (*pagination.Page[Transaction], error) {
	q := url.Values{}
	if kind != "" {
		q.Set("kind", string(kind))
	}
	return apiclient.GetPage[Transaction](ctx, s.api, transactionsPath, p, q)
}
