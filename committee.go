package attestlend

import (
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
)

// windowSize is the number of seed bytes consumed per pick.
const windowSize = 4

// CommitteeSeedInput is the preimage of the committee seed.
func CommitteeSeedInput(epoch Epoch, identifier common.Hash, timestampS uint32) []byte {
	var b strings.Builder
	b.WriteString(identifier.Hex())
	b.WriteByte('\n')
	b.WriteString(strconv.FormatUint(uint64(epoch.ID), 10))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatUint(uint64(epoch.MinCommitteeSize), 10))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatUint(uint64(timestampS), 10))
	return []byte(b.String())
}

// CommitteeSeed hashes the seed input.
func CommitteeSeed(epoch Epoch, identifier common.Hash, timestampS uint32) common.Hash {
	return keccak(CommitteeSeedInput(epoch, identifier, timestampS))
}

// SelectCommittee picks epoch.MinCommitteeSize witnesses for a claim.
//
// The selection must stay bit-exact: historical claims are only verifiable as
// long as the same (epoch, identifier, timestamp) yields the same committee.
func SelectCommittee(epoch Epoch, identifier common.Hash, timestampS uint32) ([]Witness, error) {
	size := int(epoch.MinCommitteeSize)
	if size > len(epoch.Witnesses) {
		return nil, errorsmod.Wrapf(
			ErrInsufficientWitnesses,
			"epoch %d requires %d witnesses but has %d", epoch.ID, size, len(epoch.Witnesses),
		)
	}

	return selectFromSeed(CommitteeSeed(epoch, identifier, timestampS), epoch.Witnesses, size), nil
}

// selectFromSeed samples without replacement. A picked witness is replaced
// by the last remaining one and the working roster shrinks by one, so the
// order of the working roster is not stable across picks.
func selectFromSeed(seed common.Hash, roster []Witness, size int) []Witness {
	working := make([]Witness, len(roster))
	copy(working, roster)

	committee := make([]Witness, 0, size)
	left := len(working)
	cursor := 0
	for i := 0; i < size; i++ {
		idx := int(readWindow(seed, cursor) % uint32(left))
		committee = append(committee, working[idx])

		working[idx] = working[left-1]
		left--
		cursor = (cursor + windowSize) % len(seed)
	}
	return committee
}

// readWindow reads a big-endian uint32 starting at cursor, wrapping around
// the end of the seed.
func readWindow(seed common.Hash, cursor int) uint32 {
	var v uint32
	for k := 0; k < windowSize; k++ {
		v = v<<8 | uint32(seed[(cursor+k)%len(seed)])
	}
	return v
}
