package vendors

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-studio/atelier-crm/internal/platform/httpx"
)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Vendor, int, error)
	Get(ctx context.Context, id int64) (Vendor, error)
	Create(ctx context.Context, vendor Vendor) (Vendor, error)
	Update(ctx context.Context, id int64, vendor Vendor) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Vendor, int, error) {
	query := `SELECT id, name, category, email, phone, location, rating, created_at, updated_at FROM vendors WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM vendors WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		clause := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR category ILIKE $` + strconv.Itoa(argCount) + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.Category != "" {
		argCount++
		clause := ` AND category=$` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.Category)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, (filters.Page-1)*filters.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Category, &v.Email, &v.Phone, &v.Location, &v.Rating, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, 0, err
		}
		vendors = append(vendors, v)
	}
	return vendors, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Vendor, error) {
	var v Vendor
	err := r.db.QueryRow(ctx, `SELECT id, name, category, email, phone, location, rating, created_at, updated_at FROM vendors WHERE id=$1`, id).
		Scan(&v.ID, &v.Name, &v.Category, &v.Email, &v.Phone, &v.Location, &v.Rating, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, httpx.ErrNotFound
		}
		return Vendor{}, err
	}
	return v, nil
}

func (r *repository) Create(ctx context.Context, vendor Vendor) (Vendor, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO vendors (name, category, email, phone, location, rating, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		vendor.Name, vendor.Category, vendor.Email, vendor.Phone, vendor.Location, vendor.Rating).
		Scan(&vendor.ID, &vendor.CreatedAt, &vendor.UpdatedAt)
	return vendor, err
}

func (r *repository) Update(ctx context.Context, id int64, vendor Vendor) error {
	tag, err := r.db.Exec(ctx, `UPDATE vendors SET name=$1, category=$2, email=$3, phone=$4, location=$5, rating=$6, updated_at=NOW() WHERE id=$7`,
		vendor.Name, vendor.Category, vendor.Email, vendor.Phone, vendor.Location, vendor.Rating, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vendors WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	column := "name"
	switch sortBy {
	case "category", "rating", "created_at":
		column = sortBy
	}
	if sortDir == "desc" {
		return column + " DESC"
	}
	return column + " ASC"
}
