package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// User is only ever mutated through proof-gated operations of its owner.
type User struct {
	Address     common.Address    `json:"address"`
	CreditScore *uint256.Int      `json:"creditScore"`
	Credentials map[uint64]string `json:"credentials"`
	IsVerified  bool              `json:"isVerified"`
}

func NewUser(address common.Address) User {
	return User{
		Address:     address,
		CreditScore: new(uint256.Int),
		Credentials: map[uint64]string{},
	}
}

type CredentialType struct {
	ID    uint64 `json:"id"`
	Label string `json:"label"`
}
