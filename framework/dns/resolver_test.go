package dns

import (
	"context"
	"errors"
	"net"
	"testing"
)

type staticResolver struct {
	names []string
	err   error
}

func (r staticResolver) LookupAddr(_ context.Context, _ string) ([]string, error) {
	return r.names, r.err
}

func TestLookupAddr(t *testing.T) {
	test := func(names []string, err error, wantName string, wantErr bool) {
		t.Helper()

		name, err := LookupAddr(context.Background(), staticResolver{names, err}, net.IPv4(203, 0, 113, 5))
		if (err != nil) != wantErr {
			t.Errorf("err = %v, want error: %v", err, wantErr)
		}
		if name != wantName {
			t.Errorf("name = '%s', want '%s'", name, wantName)
		}
	}

	test([]string{"mx.example.org."}, nil, "mx.example.org", false)
	test([]string{"a.example.org.", "b.example.org."}, nil, "a.example.org", false)
	test(nil, nil, "", false)
	test(nil, &net.DNSError{IsNotFound: true}, "", false)
	test(nil, errors.New("servfail"), "", true)
}
