package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/punchamoorthee/classfund/internal/store"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrNotMember = errors.New("not a member of this class")
	ErrConflict  = errors.New("payment is not awaiting review")
)

// ValidationError maps request fields to a short violation code such as
// "required" or "too_long".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

type violations map[string]string

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Fields: v}
}

// notFound turns a store miss into ErrNotFound and wraps anything else.
func notFound(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
