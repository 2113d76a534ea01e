package service

import (
	"strings"

	"github.com/noah-isme/rewear-api/internal/models"
)

const filterAll = "all"

// FilterCatalog returns the items a browsing user sees for filter, keeping the
// input order. Only approved and available items are ever returned. Search is
// a case-insensitive substring match against the title, the description or any
// tag; category and condition match exactly unless empty or "all".
// Pagination fields of filter are ignored.
func FilterCatalog(items []models.Item, filter models.CatalogFilter) []models.Item {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	category := strings.TrimSpace(filter.Category)
	condition := strings.TrimSpace(filter.Condition)

	result := make([]models.Item, 0, len(items))
	for i := range items {
		item := &items[i]
		if !item.Visible() {
			continue
		}
		if !matchesEnum(string(item.Category), category) {
			continue
		}
		if !matchesEnum(string(item.Condition), condition) {
			continue
		}
		if search != "" && !matchesSearch(item, search) {
			continue
		}
		result = append(result, *item)
	}
	return result
}

func matchesEnum(value, want string) bool {
	return want == "" || want == filterAll || value == want
}

// matchesSearch expects needle already lower-cased.
func matchesSearch(item *models.Item, needle string) bool {
	if strings.Contains(strings.ToLower(item.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(item.Description), needle) {
		return true
	}
	for _, tag := range item.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
