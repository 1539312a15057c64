package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited marks a capability call rejected by provider throttling.
	ErrRateLimited = errors.New("rate limited")
	// ErrGraphUnavailable is returned when the graph backend cannot be reached.
	ErrGraphUnavailable = errors.New("graph store unavailable")
)

// ErrorKind classifies a failed capability call.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindRateLimited
)

func (k ErrorKind) String() string {
	if k == KindRateLimited {
		return "rate_limited"
	}
	return "other"
}

// CapabilityError is the error surfaced by every LLM adapter.
type CapabilityError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Is reports rate-limited errors as ErrRateLimited.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrRateLimited && e.Kind == KindRateLimited
}

// IsRateLimited reports whether err is a throttling failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func classified(provider string, kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return err
	}
	return &CapabilityError{Provider: provider, Kind: kind, Err: err}
}
