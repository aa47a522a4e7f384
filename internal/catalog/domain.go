// internal/catalog/domain.go
package catalog

import (
	"fmt"

	"libradesk/internal/backend"
)

// Book is a title held by the library. Available counts the copies on the shelf.
type Book struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Quantity  int    `json:"quantity"`
	Available int    `json:"available"`
}

// InBounds reports whether 0 <= Available <= Quantity.
func (b Book) InBounds() bool {
	return b.Available >= 0 && b.Available <= b.Quantity
}

// Record converts the book into its backend document (without the id).
func (b Book) Record() backend.Record {
	return backend.Record{
		"title":     b.Title,
		"author":    b.Author,
		"quantity":  b.Quantity,
		"available": b.Available,
	}
}

// BookFromRecord decodes a backend document.
func BookFromRecord(id string, rec backend.Record) (Book, error) {
	b := Book{ID: id}
	var err error
	if b.Title, err = rec.String("title"); err != nil {
		return Book{}, fmt.Errorf("book %s: %w", id, err)
	}
	if b.Author, err = rec.String("author"); err != nil {
		return Book{}, fmt.Errorf("book %s: %w", id, err)
	}
	if b.Quantity, err = rec.Int("quantity", "total_copies"); err != nil {
		return Book{}, fmt.Errorf("book %s: %w", id, err)
	}
	if b.Available, err = rec.Int("available"); err != nil {
		return Book{}, fmt.Errorf("book %s: %w", id, err)
	}
	return b, nil
}
