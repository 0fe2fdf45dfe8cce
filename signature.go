package mcstream

import (
	"crypto/ed25519"
	"fmt"
	"io"
)

// SignatureAlgEd25519 is the only assigned signature algorithm identifier.
const SignatureAlgEd25519 = 1

const maxSignatureField = 1 << 16

// Signature is the optional block following the digest. It signs the 32-byte
// digest, not the whole file, so verification is constant time once the hash
// pass has run and the block can be stripped without re-hashing.
type Signature struct {
	Alg       uint8
	Sig       []byte
	PublicKey []byte
}

func (s *Signature) encode() []byte {
	out := []byte{s.Alg}
	out = appendUvarint(out, uint64(len(s.Sig)))
	out = append(out, s.Sig...)
	out = appendUvarint(out, uint64(len(s.PublicKey)))
	out = append(out, s.PublicKey...)
	return out
}

func readSignature(r io.Reader, br io.ByteReader) (*Signature, error) {
	var alg [1]byte
	if _, err := io.ReadFull(r, alg[:]); err != nil {
		return nil, ErrTruncatedFile
	}
	sig, err := readSignatureField(r, br)
	if err != nil {
		return nil, err
	}
	pub, err := readSignatureField(r, br)
	if err != nil {
		return nil, err
	}
	return &Signature{Alg: alg[0], Sig: sig, PublicKey: pub}, nil
}

func readSignatureField(r io.Reader, br io.ByteReader) ([]byte, error) {
	length, err := readUvarint(br)
	if err != nil {
		return nil, err
	}
	if length > maxSignatureField {
		return nil, fmt.Errorf("%w: signature field of %d bytes", ErrMalformedInteger, length)
	}
	field := make([]byte, length)
	if _, err := io.ReadFull(r, field); err != nil {
		return nil, ErrTruncatedFile
	}
	return field, nil
}

// Verify checks the signature against the file digest using the embedded
// public key. Whether to trust that key is the caller's problem.
func (s *Signature) Verify(digest []byte) error {
	if s.Alg != SignatureAlgEd25519 {
		return fmt.Errorf("%w: unknown signature algorithm %d", ErrSignature, s.Alg)
	}
	if len(s.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad public key size %d", ErrSignature, len(s.PublicKey))
	}
	if !ed25519.Verify(ed25519.PublicKey(s.PublicKey), digest, s.Sig) {
		return ErrSignature
	}
	return nil
}

func signDigest(key ed25519.PrivateKey, digest []byte) *Signature {
	return &Signature{
		Alg:       SignatureAlgEd25519,
		Sig:       ed25519.Sign(key, digest),
		PublicKey: append([]byte(nil), key.Public().(ed25519.PublicKey)...),
	}
}
