package types

import (
	"errors"
	"fmt"
	"unicode"
)

// DefaultBrokerAccount is the pre-funded account every deployment seeds
const DefaultBrokerAccount = "broker"

// MaxAccountIDLength bounds account ids accepted from clients
const MaxAccountIDLength = 256

// Errors
var (
	ErrAccountIDTooLong = errors.New("account id too long")
	ErrInvalidAccountID = errors.New("invalid account id")
)

// ValidateAccountID checks an account id received from a client
func ValidateAccountID(id string) error {
	if id == "" {
		return ErrEmptyAccount
	}
	if len(id) > MaxAccountIDLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrAccountIDTooLong, len(id), MaxAccountIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q", ErrInvalidAccountID, id)
		}
	}
	return nil
}

// Balances is a point-in-time copy of account balances
type Balances map[string]int64

// Total returns the sum of all balances
func (b Balances) Total() int64 {
	var sum int64
	for _, v := range b {
		sum += v
	}
	return sum
}

// Copy returns an independent copy
func (b Balances) Copy() Balances {
	c := make(Balances, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}
