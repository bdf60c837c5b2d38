package tool

import "github.com/google/uuid"

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// UUIDGenerator is the production id generator; services accept it through an
// interface so tests can substitute a deterministic one.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return GenerateUUIDV7()
}
