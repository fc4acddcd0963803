package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// GetMerchantMapping retrieves a mapping by its normalized merchant key.
func (s *SQLiteStorage) GetMerchantMapping(ctx context.Context, merchant string) (*model.MerchantMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(merchant, "merchant"); err != nil {
		return nil, err
	}

	// Check cache first
	if mapping := s.getCachedMapping(merchant); mapping != nil {
		return mapping, nil
	}

	return s.getMappingTx(ctx, s.db, merchant)
}

func (s *SQLiteStorage) getMappingTx(ctx context.Context, q queryable, merchant string) (*model.MerchantMapping, error) {
	var mapping model.MerchantMapping
	var source string

	err := q.QueryRowContext(ctx, `
		SELECT merchant, canonical_name, category, use_count, last_used, source
		FROM merchant_mappings
		WHERE merchant = ?
	`, merchant).Scan(
		&mapping.Merchant,
		&mapping.CanonicalName,
		&mapping.Category,
		&mapping.UseCount,
		&mapping.LastUsed,
		&source,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: mapping for %q", common.ErrNotFound, merchant)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant mapping: %w", err)
	}
	mapping.Source = model.MappingSource(source)

	// Update cache
	s.cacheMapping(&mapping)

	return &mapping, nil
}

// SaveMerchantMapping saves or updates a merchant mapping rule.
func (s *SQLiteStorage) SaveMerchantMapping(ctx context.Context, mapping *model.MerchantMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMapping(mapping); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveMappingTx(ctx, tx, mapping)
	})
}

func (s *SQLiteStorage) saveMappingTx(ctx context.Context, tx *sql.Tx, mapping *model.MerchantMapping) error {
	if mapping.LastUsed.IsZero() {
		mapping.LastUsed = time.Now()
	}
	if mapping.Source == "" {
		mapping.Source = model.MappingAuto
	}

	// Validate category exists
	var categoryExists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM categories WHERE name = ? AND is_active = 1)
	`, mapping.Category).Scan(&categoryExists)

	if err != nil {
		return fmt.Errorf("failed to check category existence: %w", err)
	}

	if !categoryExists {
		return fmt.Errorf("category '%s' does not exist", mapping.Category)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO merchant_mappings (merchant, canonical_name, category, use_count, last_used, source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(merchant) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			category = excluded.category,
			use_count = excluded.use_count,
			last_used = excluded.last_used,
			source = excluded.source
	`, mapping.Merchant, mapping.CanonicalName, mapping.Category, mapping.UseCount, mapping.LastUsed, string(mapping.Source))

	if err != nil {
		return fmt.Errorf("failed to save merchant mapping: %w", err)
	}

	// Update cache
	s.cacheMapping(mapping)

	return nil
}

// GetAllMerchantMappings retrieves every mapping rule.
func (s *SQLiteStorage) GetAllMerchantMappings(ctx context.Context) ([]model.MerchantMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT merchant, canonical_name, category, use_count, last_used, source
		FROM merchant_mappings
		ORDER BY merchant
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []model.MerchantMapping
	for rows.Next() {
		var mapping model.MerchantMapping
		var source string
		err := rows.Scan(
			&mapping.Merchant,
			&mapping.CanonicalName,
			&mapping.Category,
			&mapping.UseCount,
			&mapping.LastUsed,
			&source,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merchant mapping: %w", err)
		}
		mapping.Source = model.MappingSource(source)
		mappings = append(mappings, mapping)
	}

	return mappings, rows.Err()
}

// IncrementMappingUse bumps a mapping's use count and freshness stamp.
func (s *SQLiteStorage) IncrementMappingUse(ctx context.Context, merchant string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(merchant, "merchant"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE merchant_mappings
		SET use_count = use_count + 1, last_used = CURRENT_TIMESTAMP
		WHERE merchant = ?
	`, merchant)
	if err != nil {
		return fmt.Errorf("failed to increment mapping use: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: mapping for %q", common.ErrNotFound, merchant)
	}

	// The cached copy is stale now; drop it so the next read refetches.
	s.cacheMutex.Lock()
	delete(s.mappingCache, merchant)
	s.cacheMutex.Unlock()

	return nil
}

// getCachedMapping retrieves a mapping from the cache.
func (s *SQLiteStorage) getCachedMapping(merchant string) *model.MerchantMapping {
	s.cacheMutex.RLock()

	if time.Now().After(s.cacheExpiry) {
		// Cache expired, needs to be cleared
		// Upgrade to write lock
		s.cacheMutex.RUnlock()
		s.cacheMutex.Lock()
		defer s.cacheMutex.Unlock()

		// Double-check after acquiring write lock
		if time.Now().After(s.cacheExpiry) {
			s.mappingCache = make(map[string]*model.MerchantMapping)
		}
		return nil
	}

	mapping := s.mappingCache[merchant]
	s.cacheMutex.RUnlock()
	return mapping
}

// cacheMapping adds a mapping to the cache.
func (s *SQLiteStorage) cacheMapping(mapping *model.MerchantMapping) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if len(s.mappingCache) == 0 {
		// Set cache expiry on first entry
		s.cacheExpiry = time.Now().Add(5 * time.Minute)
	}
	s.mappingCache[mapping.Merchant] = mapping
}
