package models

import (
	"errors"
	"fmt"

	"github.com/tsonev198862/autofix-api/internal/validator"
)

// ErrValidation marks request-level validation failures that map to a 400 response.
var ErrValidation = errors.New("validation failed")

type PartQuery struct {
	Raw        string
	Normalized string
}

func NewPartQuery(q string) (*PartQuery, error) {
	raw, err := validator.ValidatePartNumber(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	return &PartQuery{
		Raw:        raw,
		Normalized: validator.NormalizeStrict(raw),
	}, nil
}
