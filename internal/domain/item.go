package domain

import "time"

// Item is a product saved by a user while browsing.
type Item struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	ImageURLs []string  `json:"image_urls"`
	SourceURL string    `json:"source_url"`
	Site      string    `json:"site"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
