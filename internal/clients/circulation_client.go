// internal/clients/circulation_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"libradesk/internal/circulation"
)

var _ circulation.Service = (*CirculationClient)(nil)

type CirculationClient struct {
	c *Client
}

func NewCirculationClient(c *Client) *CirculationClient {
	return &CirculationClient{c: c}
}

func (cc *CirculationClient) IssueLoan(ctx context.Context, bookID, memberID string) (*circulation.Loan, error) {
	req := map[string]string{"bookId": bookID, "memberId": memberID}

	var loan circulation.Loan
	if err := cc.c.do(ctx, http.MethodPost, "/api/v1/loans", req, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (cc *CirculationClient) ReturnLoan(ctx context.Context, loanID string) (*circulation.Return, error) {
	var ret circulation.Return
	if err := cc.c.do(ctx, http.MethodPost, "/api/v1/loans/"+url.PathEscape(loanID)+"/return", nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}
