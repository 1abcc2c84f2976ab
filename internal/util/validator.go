package util

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// 参与者 ID 规则：3-32 位，字母、数字、点、下划线
const (
	MinIdentifierLen = 3
	MaxIdentifierLen = 32
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNotAMultiple      = errors.New("amount is not a multiple of the unit size")
	ErrOutOfRange        = errors.New("chance count out of range")
)

// NormalizeIdentifier trims surrounding whitespace. Casing is kept for display.
func NormalizeIdentifier(raw string) string {
	return strings.TrimSpace(raw)
}

// IsValidIdentifier reports whether the normalized id is 3-32 ASCII letters,
// digits, '.' or '_'.
func IsValidIdentifier(id string) bool {
	v := NormalizeIdentifier(id)
	if len(v) < MinIdentifierLen || len(v) > MaxIdentifierLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		ch := v[i]
		switch {
		case ch >= 'A' && ch <= 'Z':
		case ch >= 'a' && ch <= 'z':
		case ch >= '0' && ch <= '9':
		case ch == '.' || ch == '_':
		default:
			return false
		}
	}
	return true
}

// ValidateIdentifier normalizes raw and checks it, returning the normalized form.
func ValidateIdentifier(raw string) (string, error) {
	id := NormalizeIdentifier(raw)
	if !IsValidIdentifier(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return id, nil
}

// ContributionToChances converts a contribution amount into whole chances.
func ContributionToChances(amount, unitSize, maxChancesPerRequest int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: must be positive, got %d", ErrInvalidAmount, amount)
	}
	if unitSize <= 0 {
		return 0, fmt.Errorf("%w: unit size %d", ErrInvalidAmount, unitSize)
	}
	if amount%unitSize != 0 {
		return 0, fmt.Errorf("%w: %d %% %d != 0", ErrNotAMultiple, amount, unitSize)
	}
	chances := amount / unitSize
	if chances < 1 || chances > maxChancesPerRequest {
		return 0, fmt.Errorf("%w: %d not in [1, %d]", ErrOutOfRange, chances, maxChancesPerRequest)
	}
	return chances, nil
}

// decimalAmount 只接受十进制写法："400"、"400.0"、"4e2"，不接受 0x 前缀等
var decimalAmount = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]{1,3})?$`)

// ParseAmount parses a contribution amount coming from a form, query or JSON
// string. Only whole numbers that are exactly representable as int64 are
// accepted; "400.0" and "4e2" are read exactly, never rounded.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if !decimalAmount.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || !r.IsInt() || !r.Num().IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return r.Num().Int64(), nil
}
