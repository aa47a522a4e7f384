// internal/clients/catalog_client.go
package clients

import (
	"context"
	"net/http"

	"libradesk/internal/catalog"
)

var _ catalog.Service = (*CatalogClient)(nil)

type CatalogClient struct {
	c *Client
}

func NewCatalogClient(c *Client) *CatalogClient {
	return &CatalogClient{c: c}
}

func (cc *CatalogClient) RegisterBook(ctx context.Context, title, author string, quantity int) (*catalog.Book, error) {
	req := struct {
		Title    string `json:"title"`
		Author   string `json:"author"`
		Quantity int    `json:"quantity"`
	}{title, author, quantity}

	var book catalog.Book
	if err := cc.c.do(ctx, http.MethodPost, "/api/v1/books", req, &book); err != nil {
		return nil, err
	}
	return &book, nil
}
