// internal/clients/membership_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"libradesk/internal/membership"
)

var _ membership.Service = (*MembershipClient)(nil)

type MembershipClient struct {
	c *Client
}

func NewMembershipClient(c *Client) *MembershipClient {
	return &MembershipClient{c: c}
}

func (mc *MembershipClient) RegisterMember(ctx context.Context, name string) (*membership.Member, error) {
	var member membership.Member
	if err := mc.c.do(ctx, http.MethodPost, "/api/v1/members", map[string]string{"name": name}, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (mc *MembershipClient) DeactivateMember(ctx context.Context, memberID string) error {
	return mc.c.do(ctx, http.MethodPost, "/api/v1/members/"+url.PathEscape(memberID)+"/deactivate", nil, nil)
}
