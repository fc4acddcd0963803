package model

import "time"

// Category represents a valid expense category.
type Category struct {
	CreatedAt   time.Time
	Name        string
	Description string
	ID          int
	IsActive    bool
}

// DefaultCategories seeds a fresh ledger. Users extend the list through the
// categories command.
func DefaultCategories() []Category {
	names := []string{
		"Groceries",
		"Dining",
		"Transport",
		"Health",
		"Home",
		"Entertainment",
		"Services",
		"Other",
	}
	categories := make([]Category, len(names))
	for i, name := range names {
		categories[i] = Category{Name: name, IsActive: true}
	}
	return categories
}
