package model

import (
	"strings"
	"time"
)

// MappingSource indicates how a merchant mapping was created.
type MappingSource string

const (
	// MappingAuto indicates the mapping was learned from a saved expense.
	MappingAuto MappingSource = "AUTO"
	// MappingManual indicates the mapping was created via CLI command.
	MappingManual MappingSource = "MANUAL"
)

// MerchantMapping links a raw merchant string to a canonical name and a
// preferred category.
type MerchantMapping struct {
	LastUsed      time.Time
	Merchant      string
	CanonicalName string
	Category      string
	Source        MappingSource
	UseCount      int
}

// NormalizeMerchant produces the lookup key for merchant matching: lowercase,
// collapsed whitespace, trailing store numbers stripped.
func NormalizeMerchant(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	fields := strings.Fields(s)

	// Drop trailing tokens that are store numbers like "#123" or "1234".
	for len(fields) > 1 {
		last := fields[len(fields)-1]
		trimmed := strings.TrimPrefix(last, "#")
		if trimmed != "" && isDigits(trimmed) {
			fields = fields[:len(fields)-1]
			continue
		}
		break
	}

	return strings.Join(fields, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
