//go:build !consul

package announce

import (
	"context"
	"testing"

	"fsrewire/pkg/model"
)

func TestConsulStubIsNop(t *testing.T) {
	a, err := NewConsul("127.0.0.1:8500", "", "FSR_SMC")
	if err != nil {
		t.Fatalf("NewConsul: %v", err)
	}
	if _, ok := a.(Nop); !ok {
		t.Fatalf("got %T, want Nop", a)
	}
	if err := a.Announce(context.Background(), model.Endpoint{Port: "500"}); err != nil {
		t.Fatal(err)
	}
}
