package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Role is the account variant. The zero value is RoleClient.
type Role int

const (
	RoleClient Role = iota
	RoleTrainer
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleTrainer:
		return "trainer"
	case RoleAdmin:
		return "admin"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole maps the stored name back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "client":
		return RoleClient, nil
	case "trainer":
		return RoleTrainer, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// CanManageAccounts reports whether the role may run account maintenance
// such as purging reset requests.
func (r Role) CanManageAccounts() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleTrainer, RoleClient:
		return false
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	if _, err := ParseRole(r.String()); err != nil {
		return nil, err
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(r.String())
}

func (r *Role) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	s, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("role: expected string, got %s", t)
	}
	return r.UnmarshalText([]byte(s))
}
