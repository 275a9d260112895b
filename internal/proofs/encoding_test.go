package proofs

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestCanonicalSortsKeysAndKeepsNumbers(t *testing.T) {
	doc := Document(`{ "b": 1.50, "a": {"z": "<tag>", "y": 12345678901234567890} }`)

	got, err := Canonical(doc)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	want := `{"a":{"y":12345678901234567890,"z":"<tag>"},"b":1.50}`
	if string(got) != want {
		t.Fatalf("unexpected canonical form:\n got %s\nwant %s", got, want)
	}
}

func TestCompactKeepsOrder(t *testing.T) {
	got, err := Compact(Document("{ \"b\": 1,\n \"a\": 2 }"))
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if string(got) != `{"b":1,"a":2}` {
		t.Fatalf("unexpected compact form: %s", got)
	}
}

func TestDigestIgnoresWhitespace(t *testing.T) {
	a := Digest(Document(`{"v":1}`))
	b := Digest(Document("{ \"v\" : 1 }"))
	if a != b {
		t.Fatalf("digest should not depend on whitespace: %s != %s", a, b)
	}
	if a == Digest(Document(`{"v":2}`)) {
		t.Fatalf("different documents must have different digests")
	}
}

func TestDigestCoversCanonicalBytes(t *testing.T) {
	doc := Document(`{"b": 2, "a": [1, {"d": 4, "c": 3}]}`)
	canonical, err := Canonical(doc)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if got, want := Digest(doc), crypto.Keccak256Hash(canonical).Hex(); got != want {
		t.Fatalf("digest should hash the canonical form: got %s want %s", got, want)
	}
	if Digest(doc) != Digest(Document(`{"a":[1,{"c":3,"d":4}],"b":2}`)) {
		t.Fatalf("digest should not depend on key order")
	}
}

func TestCanonicalKeepsLiteralsAndEscapesLineSeparators(t *testing.T) {
	got, err := Canonical(Document("{\"n\": 1e2, \"s\": \"a\u2028b\"}"))
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if want := `{"n":1e2,"s":"a\u2028b"}`; string(got) != want {
		t.Fatalf("unexpected canonical form:\n got %s\nwant %s", got, want)
	}
}
