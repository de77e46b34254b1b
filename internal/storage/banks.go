package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bankadvisor/internal/models"
)

// Store wraps the database for bank inventory and conversation persistence.
type Store struct {
	db *sql.DB
}

// NewStore builds a Store around an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListBanks returns the full bank inventory in one unfiltered select. The
// dataset is assumed small; no pagination or projection is applied.
func (s *Store) ListBanks(ctx context.Context) ([]models.Bank, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, rating, features, locations, account_types,
		        savings_rate, checking_rate, mortgage_rate, personal_rate
		 FROM banks ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	var banks []models.Bank
	for rows.Next() {
		var (
			b         models.Bank
			features  string
			locations string
			accounts  string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Rating, &features, &locations, &accounts,
			&b.Rates.Savings, &b.Rates.Checking, &b.Rates.Mortgage, &b.Rates.Personal); err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		b.Features = decodeStringList(features)
		b.Locations = decodeStringList(locations)
		b.AccountTypes = decodeStringList(accounts)
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// InsertBank stores a new bank record and returns its id.
func (s *Store) InsertBank(ctx context.Context, bank models.Bank) (int64, error) {
	name := strings.TrimSpace(bank.Name)
	if name == "" {
		return 0, errors.New("bank name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO banks (name, rating, features, locations, account_types,
		                    savings_rate, checking_rate, mortgage_rate, personal_rate, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, bank.Rating,
		encodeStringList(bank.Features), encodeStringList(bank.Locations), encodeStringList(bank.AccountTypes),
		bank.Rates.Savings, bank.Rates.Checking, bank.Rates.Mortgage, bank.Rates.Personal,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert bank: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("bank id: %w", err)
	}
	return id, nil
}

func encodeStringList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}
