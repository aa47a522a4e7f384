// internal/catalog/service.go
package catalog

import (
	"context"
)

// Service defines the interface for the inventory manager.
type Service interface {
	RegisterBook(ctx context.Context, title, author string, quantity int) (*Book, error)
}
