package domain

import "fmt"

// Question is the first question of a decoded DNS query message.
type Question struct {
	ID   uint16
	Name string
	Type uint16
}

// NewQuestion constructs a Question and validates its fields.
func NewQuestion(id uint16, name string, qtype uint16) (Question, error) {
	q := Question{
		ID:   id,
		Name: name,
		Type: qtype,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks that the question carries a name.
func (q Question) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("query name must not be empty")
	}
	return nil
}
