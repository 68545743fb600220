package kvstore

import "testing"

func TestFetchUnionBadAddressErrors(t *testing.T) {
	c := NewClient()
	// Port 1 on localhost should refuse connections immediately rather
	// than hang, giving a deterministic error without a live Consul agent.
	_, _, _, err := c.FetchUnion("127.0.0.1", 1, "svc/x")
	if err == nil {
		t.Fatal("expected error reaching an unreachable consul agent")
	}
}

func TestNewClientDoesNotPanic(t *testing.T) {
	if NewClient() == nil {
		t.Fatal("expected non-nil client")
	}
}
