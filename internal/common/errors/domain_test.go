package commonerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_IsSurvivesWithCause(t *testing.T) {
	cause := errors.New("secret too short")
	err := fmt.Errorf("load config: %w", ErrConfiguration.WithCause(cause))

	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected errors.Is to match ErrConfiguration, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to stay reachable, got %v", err)
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Fatal("did not expect ErrInvalidToken to match")
	}
}

func TestAsDomainError(t *testing.T) {
	de, ok := AsDomainError(fmt.Errorf("wrapped: %w", ErrInvalidToken))
	if !ok {
		t.Fatal("expected domain error")
	}
	if de.Code() != "INVALID_TOKEN" || de.HTTPStatus() != 401 {
		t.Errorf("unexpected domain error %s/%d", de.Code(), de.HTTPStatus())
	}

	if _, ok := AsDomainError(errors.New("plain")); ok {
		t.Error("plain error must not be a domain error")
	}
}
