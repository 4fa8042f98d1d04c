package fhe

import (
	"errors"
	"fmt"

	"github.com/tuneinsight/lattigo/v4/bfv"
	"github.com/tuneinsight/lattigo/v4/rlwe"

	"github.com/marthaediazx/FheDataHub/crypto"
)

// DefaultParamsLiteral is the BFV parameter set used by all FheDataHub
// deployments. PN13QP218 gives a plaintext modulus of 65537, so individual
// readings and batch sums must stay below that bound.
var DefaultParamsLiteral = bfv.PN13QP218

// BFVScheme implements Scheme (and Encryptor) on top of the lattigo BFV
// cryptosystem. It holds only public material: parameters and the
// encryption key. Not safe for concurrent use; callers serialize access.
type BFVScheme struct {
	params    bfv.Parameters
	encoder   bfv.Encoder
	encryptor rlwe.Encryptor
	evaluator bfv.Evaluator
}

// NewBFVScheme creates a scheme from a serialized BFV public key.
func NewBFVScheme(publicKeyBytes []byte) (*BFVScheme, error) {
	params, err := bfv.NewParametersFromLiteral(DefaultParamsLiteral)
	if err != nil {
		return nil, fmt.Errorf("bfv parameters: %w", err)
	}

	pk := rlwe.NewPublicKey(params.Parameters)
	if err := pk.UnmarshalBinary(publicKeyBytes); err != nil {
		return nil, fmt.Errorf("unmarshal public key: %w", err)
	}

	return &BFVScheme{
		params:    params,
		encoder:   bfv.NewEncoder(params),
		encryptor: bfv.NewEncryptor(params, pk),
		evaluator: bfv.NewEvaluator(params, rlwe.EvaluationKey{}),
	}, nil
}

// Encrypt encrypts a single reading into a fresh ciphertext handle.
func (s *BFVScheme) Encrypt(value uint64) (*Ciphertext, error) {
	if value >= s.params.T() {
		return nil, fmt.Errorf("reading %d exceeds plaintext modulus %d", value, s.params.T())
	}

	pt := bfv.NewPlaintext(s.params, s.params.MaxLevel())
	s.encoder.Encode([]uint64{value}, pt)

	ct := s.encryptor.EncryptNew(pt)
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal ciphertext: %w", err)
	}

	return &Ciphertext{Data: data, backend: ct}, nil
}

// Zero returns a fresh encryption of zero, used to seed the aggregation
// accumulator.
func (s *BFVScheme) Zero() (*Ciphertext, error) {
	return s.Encrypt(0)
}

// InitializeIfNeeded materializes the backing rlwe ciphertext from the
// handle's serialized form. Idempotent.
func (s *BFVScheme) InitializeIfNeeded(ct *Ciphertext) error {
	if ct == nil {
		return errors.New("nil ciphertext handle")
	}
	if ct.backend != nil {
		return nil
	}

	decoded := new(rlwe.Ciphertext)
	if err := decoded.UnmarshalBinary(ct.Data); err != nil {
		return fmt.Errorf("unmarshal ciphertext: %w", err)
	}
	ct.backend = decoded
	return nil
}

// Add homomorphically adds two initialized handles.
func (s *BFVScheme) Add(a, b *Ciphertext) (*Ciphertext, error) {
	cta, ok := a.backend.(*rlwe.Ciphertext)
	if !ok {
		return nil, errors.New("left operand not initialized")
	}
	ctb, ok := b.backend.(*rlwe.Ciphertext)
	if !ok {
		return nil, errors.New("right operand not initialized")
	}

	sum := s.evaluator.AddNew(cta, ctb)
	data, err := sum.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal sum: %w", err)
	}

	return &Ciphertext{Data: data, backend: sum}, nil
}

// Fingerprint digests the handle's serialized form. The handle must have
// been initialized, matching the capability contract.
func (s *BFVScheme) Fingerprint(ct *Ciphertext) (crypto.Digest, error) {
	if !ct.Initialized() {
		return crypto.Digest{}, errors.New("ciphertext not initialized")
	}
	return crypto.Sum256(ct.Data), nil
}

// BFVDecryptor implements Decryptor with the BFV secret key. It lives in
// the oracle process only.
type BFVDecryptor struct {
	params    bfv.Parameters
	encoder   bfv.Encoder
	decryptor rlwe.Decryptor
}

// NewBFVDecryptor creates a decryptor from a serialized BFV secret key.
func NewBFVDecryptor(secretKeyBytes []byte) (*BFVDecryptor, error) {
	params, err := bfv.NewParametersFromLiteral(DefaultParamsLiteral)
	if err != nil {
		return nil, fmt.Errorf("bfv parameters: %w", err)
	}

	sk := rlwe.NewSecretKey(params.Parameters)
	if err := sk.UnmarshalBinary(secretKeyBytes); err != nil {
		return nil, fmt.Errorf("unmarshal secret key: %w", err)
	}

	return &BFVDecryptor{
		params:    params,
		encoder:   bfv.NewEncoder(params),
		decryptor: bfv.NewDecryptor(params, sk),
	}, nil
}

// Decrypt recovers the plaintext sum carried in slot zero of the handle.
func (d *BFVDecryptor) Decrypt(ct *Ciphertext) (uint64, error) {
	decoded := new(rlwe.Ciphertext)
	if err := decoded.UnmarshalBinary(ct.Data); err != nil {
		return 0, fmt.Errorf("unmarshal ciphertext: %w", err)
	}

	pt := d.decryptor.DecryptNew(decoded)
	values := d.encoder.DecodeUintNew(pt)
	if len(values) == 0 {
		return 0, errors.New("empty plaintext")
	}
	return values[0], nil
}

// GenerateBFVKeyPair generates a fresh BFV key pair under the default
// parameters and returns both keys in serialized form.
func GenerateBFVKeyPair() (publicKey, secretKey []byte, err error) {
	params, err := bfv.NewParametersFromLiteral(DefaultParamsLiteral)
	if err != nil {
		return nil, nil, fmt.Errorf("bfv parameters: %w", err)
	}

	kgen := bfv.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPair()

	secretKey, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal secret key: %w", err)
	}
	publicKey, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	return publicKey, secretKey, nil
}
