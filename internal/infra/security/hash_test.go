package security

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifySuccess(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	password := "correct horse battery staple"
	encoded, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	if !strings.HasPrefix(encoded, "$2") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := hasher.Verify(password, encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("Verify returned false for correct password")
	}
}

func TestVerifyIncorrectPassword(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	encoded, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := hasher.Verify("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("Verify returned true for incorrect password")
	}
}

func TestVerifyEmptyInputs(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	ok, err := hasher.Verify("", "")
	if err != nil {
		t.Fatalf("Verify returned error for empty inputs: %v", err)
	}
	if ok {
		t.Fatal("Verify should return false for empty inputs")
	}
}

func TestHashEmptyPassword(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	if _, err := hasher.Hash(""); err == nil {
		t.Fatal("Hash expected to return error for empty password")
	}
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	hasher := NewBcryptHasher(99)

	encoded, err := hasher.Hash("clamp-me")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		t.Fatalf("Cost returned error: %v", err)
	}
	if cost != DefaultBcryptCost {
		t.Fatalf("expected cost %d, got %d", DefaultBcryptCost, cost)
	}
}
