package group

import "fmt"

// ID names a concrete group. It is stored in every snapshot and key share
// so state produced on one curve can never be resumed on another.
type ID uint8

const (
	Unknown ID = iota
	Secp256k1
	BabyJubjub
	Ed25519
)

var idNames = map[ID]string{
	Secp256k1:  "secp256k1",
	BabyJubjub: "bjj",
	Ed25519:    "ed25519",
}

func (id ID) String() string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return fmt.Sprintf("group(%d)", uint8(id))
}

// ParseID returns the ID for a curve name as printed by [ID.String].
func ParseID(name string) (ID, error) {
	for id, n := range idNames {
		if n == name {
			return id, nil
		}
	}
	return Unknown, fmt.Errorf("unknown curve %q", name)
}
