// Package model defines the domain types read from the receipt library
// and the pure derivations applied to them before upload.
package model

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// Category represents a category or subcategory from the receipt library.
// Receipts may reference categories that no longer exist, so references
// are pointers and nil means the reference is dangling or absent.
type Category struct {
	Name string
	PK   int
}

// Receipt is a single record from the receipt library, read-only.
// PK defines processing order across the whole migration.
type Receipt struct {
	Merchant     string
	Notes        string
	Path         string
	AmountString string
	Tags         []string
	Category     *Category
	SubCategory  *Category
	Amount       float64
	Timestamp    int64
	PK           int
}

// FileName derives the title under which the receipt's document is
// uploaded. The merchant name wins; a resolvable category is the
// fallback; records with neither get a placeholder.
func (r *Receipt) FileName(index int) string {
	if merchant := strings.TrimSpace(r.Merchant); merchant != "" {
		return fmt.Sprintf("%d-%s.pdf", index, merchant)
	}
	if r.Category != nil {
		return fmt.Sprintf("%d-%s.pdf", index, r.Category.Name)
	}
	return fmt.Sprintf("%d-no-name.pdf", index)
}

// CreatedAt parses the receipt's creation date out of its library path.
// Library paths always have the form Documents/YYYY/MM/DD/<file>; the
// date is taken as midnight UTC.
func (r *Receipt) CreatedAt() (time.Time, error) {
	dir := path.Dir(r.Path)
	t, err := time.ParseInLocation("Documents/2006/01/02", dir, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date from path %q: %w", r.Path, err)
	}
	return t, nil
}

// TagNames collects the tag vocabulary for the receipt: category name,
// subcategory name and every linked tag, lowercased, trimmed and
// de-duplicated. Dangling category references are skipped. The result
// is sorted so downstream resolution order is reproducible.
func (r *Receipt) TagNames() []string {
	set := make(map[string]struct{})
	if r.Category != nil {
		set[strings.ToLower(strings.TrimSpace(r.Category.Name))] = struct{}{}
	}
	if r.SubCategory != nil {
		set[strings.ToLower(strings.TrimSpace(r.SubCategory.Name))] = struct{}{}
	}
	for _, tag := range r.Tags {
		set[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}
	delete(set, "")

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
