package vendors

import (
	"time"
)

// Vendor represents a supplier in the agency directory.
type Vendor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Location  string    `json:"location"`
	Rating    float64   `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters narrow vendor listings.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	Category string
	SortBy   string
	SortDir  string
}
