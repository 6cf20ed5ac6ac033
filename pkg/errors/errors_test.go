package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindsAndCodes(t *testing.T) {
	cause := errors.New("deadlock")
	tests := []struct {
		name string
		err  error
		kind error
		code string
	}{
		{"validation", NewValidation("op", "bad input", nil), ErrValidation, CodeValidation},
		{"geocoding", NewGeocoding("op", "nowhere", "no match", nil), ErrGeocoding, CodeGeocoding},
		{"not found", NewNotFound("op", "place", "p1"), ErrNotFound, CodeNotFound},
		{"authorization", NewAuthorization("op", "u2", "not yours"), ErrAuthorization, CodeForbidden},
		{"transaction", NewTransaction("op", "aborted", cause), ErrTransaction, CodeTransaction},
		{"side effect", NewSideEffect("op", "img.png", "delete failed", cause), ErrSideEffect, CodeSideEffect},
		{"db", NewDB("op", "query failed", cause), ErrDB, CodeStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)
			if !Is(wrapped, tt.kind) {
				t.Fatalf("Is(%v, %T) = false", wrapped, tt.kind)
			}
			if got := CodeOf(wrapped); got != tt.code {
				t.Fatalf("CodeOf = %q, want %q", got, tt.code)
			}
			for _, other := range tests {
				if other.kind != tt.kind && Is(tt.err, other.kind) {
					t.Fatalf("%s unexpectedly matches %T", tt.name, other.kind)
				}
			}
		})
	}
}

func TestOutermostCodeWins(t *testing.T) {
	inner := NewDB("repo.Save", "insert failed", errors.New("conn reset"))
	err := NewTransaction("places.Create", "creating place failed, please try again", inner)

	if CodeOf(err) != CodeTransaction {
		t.Fatalf("CodeOf = %s", CodeOf(err))
	}
	if MessageOf(err) != "creating place failed, please try again" {
		t.Fatalf("MessageOf = %q", MessageOf(err))
	}
	if !Is(err, ErrDB) || !errors.Is(err, inner) {
		t.Fatal("cause lost in chain")
	}
}

func TestMessages(t *testing.T) {
	if got := MessageOf(NewNotFound("op", "place", "p1")); got != "could not find place for the provided id" {
		t.Fatalf("not found message = %q", got)
	}
	if got := MessageOf(errors.New("raw driver error")); got != "something went wrong, please try again" {
		t.Fatalf("untyped message leaked: %q", got)
	}
	if CodeOf(nil) != CodeInternal {
		t.Fatal("nil error should map to INTERNAL")
	}

	var nf *NotFoundError
	if !errors.As(NewNotFound("op", "user", "u9"), &nf) || nf.Resource != "user" || nf.ID != "u9" {
		t.Fatalf("not found fields: %+v", nf)
	}
}
