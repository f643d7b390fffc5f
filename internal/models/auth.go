package models

// Login accepts either an email address or a phone number as Identifier.
type Login struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}
