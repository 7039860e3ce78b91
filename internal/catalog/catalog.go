package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

// Product is an immutable catalog entry.
type Product struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required"`
	Description string          `json:"description" validate:"required"`
	ImageURL    string          `json:"image_url" validate:"required,url"`
}

// Catalog is an ordered, read-only product list.
type Catalog struct {
	products []Product
	byID     map[string]int
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
	}

	for i, p := range products {
		p.ID = strings.TrimSpace(p.ID)
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("product #%d: %w", i+1, err)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("product %q: price must not be negative", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("product %q: duplicate id", p.ID)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}

	return c, nil
}

// Load reads a JSON array of products from path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(products)
}

func (c *Catalog) List() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Get(id string) (Product, error) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.products[idx], nil
}

func (c *Catalog) Len() int {
	return len(c.products)
}

// Describe builds the garment description handed to the generation service.
// The first word of the name usually carries the colour.
func Describe(p Product) string {
	color := "match image"
	if fields := strings.Fields(p.Name); len(fields) > 0 {
		color = fields[0]
	}
	return fmt.Sprintf("%s (%s). Color: %s. Style: %s", p.Name, p.Category, color, p.Description)
}
