package bank

import "github.com/caesarchad/rustelo-easy/identity"

// Account is the committed state unit (spec §3). Tokens must never go
// negative on a committed state; an account whose tokens fall to zero is
// purged from the accounts map after commit.
type Account struct {
	Tokens    int64
	Userdata  []byte
	ProgramID identity.Pubkey
}

// Clone returns a deep copy safe to mutate independently of the original.
func (a Account) Clone() Account {
	c := a
	c.Userdata = append([]byte(nil), a.Userdata...)
	return c
}
