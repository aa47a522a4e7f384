// internal/membership/domain.go
package membership

import (
	"fmt"

	"libradesk/internal/backend"
)

// Member represents a library member. Members are never deleted, only deactivated.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (m Member) Record() backend.Record {
	return backend.Record{
		"name":   m.Name,
		"active": m.Active,
	}
}

// MemberFromRecord decodes a backend document. A missing active flag means active.
func MemberFromRecord(id string, rec backend.Record) (Member, error) {
	m := Member{ID: id}
	var err error
	if m.Name, err = rec.String("name"); err != nil {
		return Member{}, fmt.Errorf("member %s: %w", id, err)
	}
	if m.Active, err = rec.Bool(true, "active"); err != nil {
		return Member{}, fmt.Errorf("member %s: %w", id, err)
	}
	return m, nil
}
