package validator

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// RequiredString fails when value is empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "field is required"},
	}
}

// MinLenString counts characters, not bytes.
func MinLenString(field, value string, min int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) >= min },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters long", min)},
	}
}

// MaxLenString counts characters, not bytes.
func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters long", max)},
	}
}

// OneOf fails when value is not in allowed.
func OneOf[T comparable](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be one of: %v", allowed)},
	}
}

// EachOneOf fails when any element of values is not in allowed.
func EachOneOf[T comparable](field string, values []T, allowed []T) Rule {
	return Rule{
		Check: func() bool {
			for _, v := range values {
				if !slices.Contains(allowed, v) {
					return false
				}
			}
			return true
		},
		Error: ValidationError{Field: field, Message: fmt.Sprintf("every item must be one of: %v", allowed)},
	}
}
