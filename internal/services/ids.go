package services

import (
	"strings"

	"github.com/google/uuid"
)

// ParseID parses a required id supplied by a client.
func ParseID(field, value string) (uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil, invalid("%s is required", field)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, invalid("%s is not a valid id", field)
	}
	return id, nil
}

// ParseOptionalID is ParseID for fields that may be omitted.
func ParseOptionalID(field, value string) (uuid.NullUUID, error) {
	if strings.TrimSpace(value) == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := ParseID(field, value)
	if err != nil {
		return uuid.NullUUID{}, err
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}
