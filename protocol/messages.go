package protocol

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/marthaediazx/FheDataHub/crypto"
)

// Signed wraps a message with an Ed25519 signature for authentication.
// The recovered signer public key is the identity the core's capability
// and cooldown checks run against.
//
// Note: the signature covers the serialized object plus the public key to
// prevent substitution.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

// NewSigned creates an authenticated message by signing the serialized
// object and public key.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serializedData, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, append(serializedData, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// UnsafeObject returns the wrapped object without verifying the signature.
func (s *Signed[T]) UnsafeObject() *T {
	return s.Object
}

// Recover verifies the signature and returns the authenticated object with
// the signer's public key.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	serializedData, err := SerializeMessage(s.Object)
	if err != nil {
		return nil, nil, err
	}

	ok := s.Signature.Verify(s.PublicKey, append(serializedData, s.PublicKey...))
	if !ok {
		return nil, nil, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey, nil
}

// SerializeMessage serializes a message to its canonical JSON form.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage decodes a JSON message from a reader.
func DecodeMessage[T any](r io.Reader) (*T, error) {
	var msg T
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
