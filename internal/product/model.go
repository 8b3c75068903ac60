package product

import (
	"time"

	"github.com/gofrs/uuid"
)

type Category string

const (
	CategoryJar    Category = "JAR"
	CategoryNormal Category = "NORMAL"
	CategoryLuxury Category = "LUXURY"
)

type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description,omitempty" db:"description"`
	Category    Category  `json:"category" db:"category"`
	Fragrance   string    `json:"fragrance,omitempty" db:"fragrance"`
	Size        string    `json:"size" db:"size"`
	Price       float64   `json:"price" db:"price"` // Используем float64 для денег, как и в заказах
	Stock       int       `json:"stock" db:"stock"`
	ImageURLs   []string  `json:"image_urls" db:"image_urls"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
