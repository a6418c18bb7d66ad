// Package hashchain computes and verifies the tamper-evident hash chain
// that links every committed event to its predecessor within a
// (device, log date) scope.
//
// Each event carries two hashes: the content hash, SHA-256 over the
// canonical JSON of its payload fields, and the chain hash,
// SHA-256(previous chain hash ∥ content hash) over the raw 32-byte
// digests. The first event of a scope links to 32 zero bytes.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// GenesisHash is the hex form of the 32 zero bytes the first event of a
// scope chains from.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ContentHash computes the SHA-256 of the event's canonical payload,
// hex-encoded.
func ContentHash(e *eld.Event) (string, error) {
	data, err := marshalCanonical(canonicalPayload(e))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash links a content hash to the previous chain hash. Both inputs
// are hex digests; the concatenation is over the raw 32-byte values.
func ChainHash(previousChainHash, contentHash string) (string, error) {
	prev, err := hex.DecodeString(previousChainHash)
	if err != nil || len(prev) != sha256.Size {
		return "", fmt.Errorf("invalid previous chain hash %q", previousChainHash)
	}
	content, err := hex.DecodeString(contentHash)
	if err != nil || len(content) != sha256.Size {
		return "", fmt.Errorf("invalid content hash %q", contentHash)
	}

	hasher := sha256.New()
	hasher.Write(prev)
	hasher.Write(content)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CheckValue derives the FMCSA line check value from a content hash: the
// sum of the raw digest bytes folded into one byte.
func CheckValue(contentHash string) int {
	raw, err := hex.DecodeString(contentHash)
	if err != nil {
		return 0
	}
	sum := 0
	for _, b := range raw {
		sum += int(b)
	}
	return sum % 256
}

// Link populates the integrity fields of an event from its predecessor.
// prev is the highest-sequence active event in the same scope, or nil
// when e is the first of its scope.
//
// The caller must hold the scope serialization (lock or row lock) so the
// predecessor cannot change between linking and commit.
func Link(e *eld.Event, prev *eld.Event) error {
	contentHash, err := ContentHash(e)
	if err != nil {
		return err
	}

	previous := GenesisHash
	if prev != nil {
		previous = prev.ChainHash
		e.PreviousChainHash = &prev.ChainHash
	} else {
		e.PreviousChainHash = nil
	}

	chainHash, err := ChainHash(previous, contentHash)
	if err != nil {
		return err
	}

	e.ContentHash = contentHash
	e.ChainHash = chainHash
	e.CheckValue = CheckValue(contentHash)
	return nil
}

// VerifyResult reports the outcome of a chain verification pass.
type VerifyResult struct {
	Valid                 bool `json:"valid"`
	Checked               int  `json:"checked"`
	FirstBrokenSequenceID *int `json:"first_broken_sequence_id,omitempty"`
}

// Verify walks a contiguous, sequence-ordered range of active events in
// one scope and checks that every record's content hash matches its
// payload and that every chain hash links to its predecessor. The first
// event's stored previous hash is taken as given (its predecessor may
// sit outside the range); a nil previous hash is treated as genesis.
func Verify(events []*eld.Event) (VerifyResult, error) {
	result := VerifyResult{Valid: true}

	for i, e := range events {
		contentHash, err := ContentHash(e)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("event %s: %w", e.ID, err)
		}

		previous := GenesisHash
		switch {
		case i > 0:
			previous = events[i-1].ChainHash
			if e.PreviousChainHash == nil || *e.PreviousChainHash != previous {
				return broken(result, e), nil
			}
		case e.PreviousChainHash != nil:
			previous = *e.PreviousChainHash
		}

		if contentHash != e.ContentHash {
			return broken(result, e), nil
		}

		chainHash, err := ChainHash(previous, contentHash)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("event %s: %w", e.ID, err)
		}
		if chainHash != e.ChainHash {
			return broken(result, e), nil
		}

		result.Checked++
	}

	return result, nil
}

func broken(result VerifyResult, e *eld.Event) VerifyResult {
	seq := e.SequenceID
	result.Valid = false
	result.FirstBrokenSequenceID = &seq
	return result
}
