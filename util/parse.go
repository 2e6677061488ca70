package util

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUint parses a base-10 unsigned integer that must fit in bitSize bits.
// field names the value in the returned error.
func ParseUint(field, str string, bitSize int) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(str), 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: expected an unsigned %d-bit integer", field, str, bitSize)
	}
	return v, nil
}

// ParseUintOr is ParseUint that returns fallback for an empty string.
func ParseUintOr(field, str string, fallback uint64, bitSize int) (uint64, error) {
	if strings.TrimSpace(str) == "" {
		return fallback, nil
	}
	return ParseUint(field, str, bitSize)
}
