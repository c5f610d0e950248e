// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package automation

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// SignatureLength is the size of a recoverable [R || S || V] signature.
const SignatureLength = 65

// RecoverSigner returns the address that signed digest. The recovery
// byte accepts both the raw {0, 1} and the legacy {27, 28} encodings.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return common.PubkeyToAddress(*pub), nil
}

// ErrInvalidSignature reports a signature that cannot be recovered.
var ErrInvalidSignature = errors.New("malformed signature")
