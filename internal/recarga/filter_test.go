package recarga

import (
	"testing"
	"time"

	"github.com/mprlab/recarga/internal/api"
)

func sampleTransactions() []api.Transaction {
	day := func(dayOfMonth int) time.Time {
		return time.Date(2026, 2, dayOfMonth, 12, 0, 0, 0, time.UTC)
	}
	return []api.Transaction{
		{ID: "rec-1", PhoneNumber: "3001234567", Status: api.StatusCompleted, SupplierID: "8753", CreatedAt: day(10)},
		{ID: "rec-2", PhoneNumber: "3109876543", Status: api.StatusPending, SupplierID: "9773", CreatedAt: day(12)},
		{ID: "rec-3", PhoneNumber: "3001234567", Status: api.StatusFailed, SupplierID: "8753", CreatedAt: day(14)},
		{ID: "rec-4", PhoneNumber: "3205551234", Status: api.StatusCompleted, SupplierID: "3398", CreatedAt: day(16)},
	}
}

func transactionIDs(transactions []api.Transaction) []string {
	ids := make([]string, 0, len(transactions))
	for _, transaction := range transactions {
		ids = append(ids, transaction.ID)
	}
	return ids
}

func TestFilterTransactionsZeroFilterMatchesAll(t *testing.T) {
	t.Parallel()

	filtered := FilterTransactions(sampleTransactions(), TransactionFilter{})
	if len(filtered) != 4 {
		t.Fatalf("expected all transactions, got %v", transactionIDs(filtered))
	}
}

func TestFilterTransactionsByPhoneSubstring(t *testing.T) {
	t.Parallel()

	filtered := FilterTransactions(sampleTransactions(), TransactionFilter{PhoneNumber: "123456"})
	if len(filtered) != 2 || filtered[0].ID != "rec-1" || filtered[1].ID != "rec-3" {
		t.Fatalf("unexpected result: %v", transactionIDs(filtered))
	}
}

func TestFilterTransactionsByStatusAndSupplier(t *testing.T) {
	t.Parallel()

	filtered := FilterTransactions(sampleTransactions(), TransactionFilter{
		Status:     api.StatusCompleted,
		SupplierID: "8753",
	})
	if len(filtered) != 1 || filtered[0].ID != "rec-1" {
		t.Fatalf("unexpected result: %v", transactionIDs(filtered))
	}
}

func TestFilterTransactionsDateRangeIsInclusive(t *testing.T) {
	t.Parallel()

	filtered := FilterTransactions(sampleTransactions(), TransactionFilter{
		DateFrom: time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC),
	})
	if len(filtered) != 2 || filtered[0].ID != "rec-2" || filtered[1].ID != "rec-3" {
		t.Fatalf("unexpected result: %v", transactionIDs(filtered))
	}
}

func TestPaginateClampsPageNumber(t *testing.T) {
	t.Parallel()

	items := sampleTransactions()

	page := Paginate(items, 0, 5)
	if page.Number != 1 || len(page.Items) != 4 {
		t.Fatalf("page number must clamp to 1: %+v", page)
	}

	page = Paginate(items, 99, 5)
	if page.Number != 1 {
		t.Fatalf("page number must clamp to the last page: %+v", page)
	}
}

func TestPaginateSplitsPages(t *testing.T) {
	t.Parallel()

	items := make([]api.Transaction, 12)
	for index := range items {
		items[index] = api.Transaction{ID: string(rune('a' + index))}
	}

	page := Paginate(items, 1, 5)
	if page.TotalItems != 12 || page.TotalPages != 3 || len(page.Items) != 5 {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page = Paginate(items, 3, 5)
	if page.Number != 3 || len(page.Items) != 2 {
		t.Fatalf("unexpected last page: %+v", page)
	}
}

func TestPaginateFallsBackToDefaultSize(t *testing.T) {
	t.Parallel()

	page := Paginate(sampleTransactions(), 1, 7)
	if page.Size != DefaultPageSize {
		t.Fatalf("unsupported size must fall back to %d, got %d", DefaultPageSize, page.Size)
	}
}

func TestPaginateEmptyListHasOnePage(t *testing.T) {
	t.Parallel()

	page := Paginate(nil, 1, 10)
	if page.TotalPages != 1 || page.TotalItems != 0 || len(page.Items) != 0 {
		t.Fatalf("unexpected empty page: %+v", page)
	}
}
