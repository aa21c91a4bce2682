package custodian

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

func TestIssueAccountCapUnique(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	a, err := IssueAccountCap(owner)
	if err != nil {
		t.Fatalf("IssueAccountCap: %v", err)
	}
	b, err := IssueAccountCap(owner)
	if err != nil {
		t.Fatalf("IssueAccountCap: %v", err)
	}
	if a.Owner != owner || b.Owner != owner {
		t.Fatal("cap owner mismatch")
	}
	if a.Token == b.Token {
		t.Fatal("two caps for the same owner share a token")
	}
	if a.Token == ([32]byte{}) {
		t.Fatal("zero token minted")
	}
}

func TestIssuePoolOwnerCap(t *testing.T) {
	id := uuid.New()
	cap, err := IssuePoolOwnerCap(id)
	if err != nil {
		t.Fatalf("IssuePoolOwnerCap: %v", err)
	}
	if cap.PoolID != id {
		t.Fatalf("cap pool id = %s, want %s", cap.PoolID, id)
	}
	other, err := IssuePoolOwnerCap(id)
	if err != nil {
		t.Fatalf("IssuePoolOwnerCap: %v", err)
	}
	if cap.Token == other.Token {
		t.Fatal("two owner caps share a token")
	}
}
