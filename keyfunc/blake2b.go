package keyfunc

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/blake2b"
)

// noArgumentsMarker stands in for the argument list of a call without arguments.
// It cannot collide with a canonical argument list, which always starts with '{'.
var noArgumentsMarker = []byte("\x00no-arguments")

/*
Blake2b derives compact keys: the hex BLAKE2b-256 digest of salt, identity and the
canonical argument list. Salt namespaces the digests, typically with an application
version, so a new release does not read keys written by an old one.
*/
type Blake2b struct {
	Salt string
}

func (b Blake2b) Key(identity string, args ...any) (any, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	encoded, ok, err := Canonical(args...)
	if err != nil {
		return nil, err
	}
	if !ok {
		encoded = noArgumentsMarker
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	// Length-prefix the variable parts so ("ab","c") and ("a","bc") differ.
	writeField(h, []byte(b.Salt))
	writeField(h, []byte(identity))
	writeField(h, encoded)

	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeField(w io.Writer, field []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(field)))
	_, _ = w.Write(n[:])
	_, _ = w.Write(field)
}
