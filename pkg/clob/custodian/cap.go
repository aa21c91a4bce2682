package custodian

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// AccountCap authorizes ledger and order operations for one account. The
// token is minted from fresh randomness and compared for equality only; the
// engine never derives anything from it.
type AccountCap struct {
	Owner common.Address
	Token [32]byte
}

// PoolOwnerCap authorizes fee withdrawal for exactly one pool.
type PoolOwnerCap struct {
	PoolID uuid.UUID
	Token  [32]byte
}

func mintToken(context []byte) ([32]byte, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return [32]byte{}, fmt.Errorf("mint capability token: %w", err)
	}
	h := sha3.New256()
	h.Write(context)
	h.Write(seed[:])
	var token [32]byte
	copy(token[:], h.Sum(nil))
	return token, nil
}

// IssueAccountCap mints an unforgeable capability for owner.
func IssueAccountCap(owner common.Address) (AccountCap, error) {
	token, err := mintToken(owner.Bytes())
	if err != nil {
		return AccountCap{}, err
	}
	return AccountCap{Owner: owner, Token: token}, nil
}

// IssuePoolOwnerCap mints the one capability that can withdraw a pool's fees.
func IssuePoolOwnerCap(poolID uuid.UUID) (PoolOwnerCap, error) {
	token, err := mintToken(poolID[:])
	if err != nil {
		return PoolOwnerCap{}, err
	}
	return PoolOwnerCap{PoolID: poolID, Token: token}, nil
}
