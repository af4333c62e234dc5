package id

import "github.com/google/uuid"

// Sequence issues time-ordered (v7) identifiers, so lexical order follows
// creation order.
type Sequence struct{}

func NewSequence() Sequence { return Sequence{} }

func (Sequence) NewID() string {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v.String()
}
