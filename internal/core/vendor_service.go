package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VendorService manages the suppliers and consultants the studio buys from.
type VendorService interface {
	CreateVendor(ctx context.Context, input VendorInput) (*Vendor, error)
	UpdateVendor(ctx context.Context, vendorID int, input VendorInput) (*Vendor, error)
	// DeleteVendor refuses to delete a vendor that has bills.
	DeleteVendor(ctx context.Context, vendorID int) error

	GetVendor(ctx context.Context, vendorID int) (*Vendor, error)
	GetVendors(ctx context.Context, search string) ([]Vendor, error)
}

type VendorInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	TaxID   string `json:"tax_id"`
	Notes   string `json:"notes"`
}

type vendorService struct {
	pool *pgxpool.Pool
}

func NewVendorService(pool *pgxpool.Pool) VendorService {
	return &vendorService{pool: pool}
}

const vendorColumns = `id, name, phone, email, address, tax_id, notes, created_at`

func scanVendor(row pgx.Row) (*Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Phone, &v.Email, &v.Address, &v.TaxID, &v.Notes, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *vendorService) CreateVendor(ctx context.Context, input VendorInput) (*Vendor, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("vendor name is required")
	}
	v, err := scanVendor(s.pool.QueryRow(ctx, `
		INSERT INTO vendors (name, phone, email, address, tax_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+vendorColumns,
		input.Name, input.Phone, input.Email, input.Address, input.TaxID, input.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to create vendor: %w", err)
	}
	return v, nil
}

func (s *vendorService) UpdateVendor(ctx context.Context, vendorID int, input VendorInput) (*Vendor, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("vendor name is required")
	}
	v, err := scanVendor(s.pool.QueryRow(ctx, `
		UPDATE vendors
		SET name = $1, phone = $2, email = $3, address = $4, tax_id = $5, notes = $6
		WHERE id = $7
		RETURNING `+vendorColumns,
		input.Name, input.Phone, input.Email, input.Address, input.TaxID, input.Notes, vendorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vendor %d not found", vendorID)
		}
		return nil, fmt.Errorf("failed to update vendor %d: %w", vendorID, err)
	}
	return v, nil
}

func (s *vendorService) DeleteVendor(ctx context.Context, vendorID int) error {
	var billCount int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM bills WHERE vendor_id = $1", vendorID,
	).Scan(&billCount)
	if err != nil {
		return fmt.Errorf("failed to check bills for vendor %d: %w", vendorID, err)
	}
	if billCount > 0 {
		return fmt.Errorf("vendor %d has %d bill(s) and cannot be deleted", vendorID, billCount)
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM vendors WHERE id = $1", vendorID)
	if err != nil {
		return fmt.Errorf("failed to delete vendor %d: %w", vendorID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vendor %d not found", vendorID)
	}
	return nil
}

func (s *vendorService) GetVendor(ctx context.Context, vendorID int) (*Vendor, error) {
	v, err := scanVendor(s.pool.QueryRow(ctx,
		"SELECT "+vendorColumns+" FROM vendors WHERE id = $1", vendorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vendor %d not found", vendorID)
		}
		return nil, fmt.Errorf("failed to fetch vendor %d: %w", vendorID, err)
	}
	return v, nil
}

func (s *vendorService) GetVendors(ctx context.Context, search string) ([]Vendor, error) {
	query := "SELECT " + vendorColumns + " FROM vendors"
	var args []any
	if search != "" {
		query += " WHERE name ILIKE $1"
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendors: %w", err)
	}
	defer rows.Close()

	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.Email, &v.Address, &v.TaxID, &v.Notes, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}
