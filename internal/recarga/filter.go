package recarga

import (
	"strings"
	"time"

	"github.com/mprlab/recarga/internal/api"
)

// PageSizes are the page sizes the history view offers.
var PageSizes = []int{5, 10, 20, 50}

// DefaultPageSize is used when the requested size is not offered.
const DefaultPageSize = 10

// TransactionFilter narrows the history view. Zero values match everything.
type TransactionFilter struct {
	PhoneNumber string
	Status      string
	SupplierID  string
	DateFrom    time.Time
	DateTo      time.Time
}

// FilterTransactions applies the filter client-side: phone is a substring
// match, status and supplier are exact, and the date range is inclusive.
func FilterTransactions(transactions []api.Transaction, filter TransactionFilter) []api.Transaction {
	filtered := make([]api.Transaction, 0, len(transactions))
	for _, transaction := range transactions {
		if filter.PhoneNumber != "" && !strings.Contains(transaction.PhoneNumber, filter.PhoneNumber) {
			continue
		}
		if filter.Status != "" && transaction.Status != filter.Status {
			continue
		}
		if filter.SupplierID != "" && transaction.SupplierID != filter.SupplierID {
			continue
		}
		if !filter.DateFrom.IsZero() && transaction.CreatedAt.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && transaction.CreatedAt.After(filter.DateTo) {
			continue
		}
		filtered = append(filtered, transaction)
	}
	return filtered
}

// Page is one window of the filtered history.
type Page struct {
	Items      []api.Transaction
	Number     int
	Size       int
	TotalItems int
	TotalPages int
}

// Paginate slices the items into the requested page. Page numbers are
// 1-based and clamped into range; unsupported sizes fall back to the default.
func Paginate(items []api.Transaction, pageNumber int, pageSize int) Page {
	if !allowedPageSize(pageSize) {
		pageSize = DefaultPageSize
	}

	totalItems := len(items)
	totalPages := (totalItems + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageNumber > totalPages {
		pageNumber = totalPages
	}

	start := (pageNumber - 1) * pageSize
	end := start + pageSize
	if start > totalItems {
		start = totalItems
	}
	if end > totalItems {
		end = totalItems
	}

	return Page{
		Items:      items[start:end],
		Number:     pageNumber,
		Size:       pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

func allowedPageSize(pageSize int) bool {
	for _, allowed := range PageSizes {
		if pageSize == allowed {
			return true
		}
	}
	return false
}
