// Package docnumber allocates human readable document codes of the form
// {prefix}-{YYYYMM}-{seq:06d}. The sequence restarts every calendar month and is drawn from an
// atomic counter, never by scanning existing documents.
package docnumber

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prefixes used by the workflows.
const (
	PrefixPurchase    = "PUR"
	PrefixTransfer    = "TRF"
	PrefixConsignment = "CSG"
	PrefixStockCount  = "OPN"
)

const periodLayout = "200601"

// ErrInvalidCode is returned by Parse for malformed codes.
var ErrInvalidCode = errors.New("docnumber: invalid code")

// Allocator hands out the next code for a prefix in the current month.
type Allocator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// Period returns the YYYYMM bucket of t in UTC.
func Period(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// Format renders a code.
func Format(prefix string, t time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, Period(t), seq)
}

// Code is a parsed document code.
type Code struct {
	Prefix string
	Period string
	Seq    int64
}

// Parse splits a code produced by Format. Prefixes may themselves contain dashes.
func Parse(code string) (Code, error) {
	last := strings.LastIndex(code, "-")
	if last <= 0 {
		return Code{}, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	mid := strings.LastIndex(code[:last], "-")
	if mid <= 0 {
		return Code{}, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	period := code[mid+1 : last]
	if _, err := time.Parse(periodLayout, period); err != nil {
		return Code{}, fmt.Errorf("%w: period %q", ErrInvalidCode, period)
	}
	digits := code[last+1:]
	if len(digits) < 6 {
		return Code{}, fmt.Errorf("%w: sequence %q", ErrInvalidCode, digits)
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq <= 0 {
		return Code{}, fmt.Errorf("%w: sequence %q", ErrInvalidCode, digits)
	}
	return Code{Prefix: code[:mid], Period: period, Seq: seq}, nil
}

func validPrefix(prefix string) error {
	if prefix == "" {
		return errors.New("docnumber: prefix required")
	}
	return nil
}
