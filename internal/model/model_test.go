package model

import (
	"errors"
	"testing"
)

func TestMatchesKeywordSearchesAllFourFields(t *testing.T) {
	l := Laptop{
		Brand:       "Lenovo",
		Model:       "ThinkPad X1 Carbon",
		Title:       "ThinkPad X1 Carbon Gen 9",
		Description: "slim business ultrabook",
	}

	for _, kw := range []string{"lenovo", "x1 carbon", "GEN 9", "ultrabook"} {
		if !l.MatchesKeyword(kw) {
			t.Fatalf("expected match for %q", kw)
		}
	}
	if l.MatchesKeyword("macbook") {
		t.Fatal("matched unrelated keyword")
	}
}

func TestEmbeddingTextSkipsEmptyFields(t *testing.T) {
	l := Laptop{Brand: "Apple", Title: "MacBook Air"}
	if got := l.EmbeddingText(); got != "Apple MacBook Air" {
		t.Fatalf("unexpected embedding text: %q", got)
	}
}

func TestStorageErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := &StorageError{Op: "vector", ID: 9, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("StorageError should unwrap to its cause")
	}
	msg := err.Error()
	if msg == "" || !errors.As(error(err), new(*StorageError)) {
		t.Fatalf("unexpected error shape: %q", msg)
	}
}
