package address

import (
	"testing"
)

func TestForLookup(t *testing.T) {
	test := func(in, wantOut string, fail bool) {
		t.Helper()

		out, err := ForLookup(in)
		if err == nil && fail {
			t.Errorf("%s: expected failure, got none", in)
		}
		if out != wantOut {
			t.Errorf("%s: wrong result: want '%s', got '%s'", in, wantOut, out)
		}
	}

	test("test@example.org", "test@example.org", false)
	test("É@example.org", "é@example.org", false)
	test("test@EXAMPLE.org", "test@example.org", false)
	test("test@xn--e1aybc.example.org", "test@тест.example.org", false)
	test("tESt@", "test@", true)
	test("postmaster", "postmaster", false)
}

func TestForAccount(t *testing.T) {
	test := func(in, wantOut string) {
		t.Helper()

		out := ForAccount(in)
		if out != wantOut {
			t.Errorf("%s: wrong result: want '%s', got '%s'", in, wantOut, out)
		}
	}

	test("test@example.org", "test@example.org")
	test("TEST@EXAMPLE.org", "test@example.org")
	test("  test@example.org ", "test@example.org")
	test("user+lists@example.org", "user@example.org")
	test("user+a+b@example.org", "user@example.org")
	test("É@example.org", "é@example.org")
	test("test@xn--e1aybc.example.org", "test@тест.example.org")
	test("postmaster", "postmaster")

	// Malformed input identifies no account.
	test("", "")
	test("   ", "")
	test("no-domain@", "")
	test("@no-local", "")
	test("+tag@example.org", "")
}

func TestEqual(t *testing.T) {
	test := func(in1, in2 string, wantEq bool) {
		eq := Equal(in1, in2)
		if eq != wantEq {
			t.Errorf("Want Equal(%s, %s) == %v, got %v", in1, in2, wantEq, eq)
		}
	}

	test("test@example.org", "test@example.org", true)
	test("test2@example.org", "test@example.org", false)
	test("TEST2@example.org", "TesT2@example.org", true)
	test("É@example.org", "é@example.org", true)
	test("test@тест.example.org", "test@xn--e1aybc.example.org", true)
}
