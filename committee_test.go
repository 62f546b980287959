package attestlend

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func roster(n int) []Witness {
	witnesses := make([]Witness, n)
	for i := range witnesses {
		witnesses[i] = Witness{
			Address: common.BytesToAddress([]byte{0x0a, byte(i + 1)}),
			Host:    fmt.Sprintf("wss://witness-%d.example", i),
		}
	}
	return witnesses
}

func seedOf(words ...uint32) common.Hash {
	var seed common.Hash
	for i, w := range words {
		seed[i*4] = byte(w >> 24)
		seed[i*4+1] = byte(w >> 16)
		seed[i*4+2] = byte(w >> 8)
		seed[i*4+3] = byte(w)
	}
	return seed
}

func TestSelectFromSeedSwapRemoval(t *testing.T) {
	w := roster(5)

	// picks 5%5=0, then 7%4=3 on [E,B,C,D], then 2%3=2 on [E,B,C]
	committee := selectFromSeed(seedOf(5, 7, 2), w, 3)
	require.Equal(t, []Witness{w[0], w[3], w[2]}, committee)

	// a stable filter would have picked E second; swap removal must not
	require.NotContains(t, committee, w[4])
}

func TestSelectFromSeedLargeWindow(t *testing.T) {
	w := roster(7)

	// 0xffffffff % 7 = 3, then W6 takes slot 3 and 6 % 6 = 0
	committee := selectFromSeed(seedOf(0xffffffff, 6), w, 2)
	require.Equal(t, []Witness{w[3], w[0]}, committee)
}

func TestSelectFromSeedDoesNotMutateRoster(t *testing.T) {
	w := roster(4)
	snapshot := append([]Witness(nil), w...)

	selectFromSeed(seedOf(1, 1, 1, 1), w, 4)
	require.Equal(t, snapshot, w)
}

func TestReadWindowWraps(t *testing.T) {
	var seed common.Hash
	seed[30], seed[31], seed[0], seed[1] = 0x01, 0x02, 0x03, 0x04

	require.Equal(t, uint32(0x01020304), readWindow(seed, 30))
	require.Equal(t, uint32(0x03040000), readWindow(seed, 0))
}

func TestSelectFromSeedCursorWraps(t *testing.T) {
	w := roster(12)
	// nine picks walk the cursor through 0..28 and back to 0
	seed := seedOf(0, 0, 0, 0, 0, 0, 0, 0)
	seed[3] = 1

	committee := selectFromSeed(seed, w, 9)
	require.Len(t, committee, 9)
	require.Equal(t, w[1], committee[0])
	// the ninth pick reads window 0 again: 1 % 4 over the working roster
	seen := map[common.Address]bool{}
	for _, m := range committee {
		require.False(t, seen[m.Address])
		seen[m.Address] = true
	}
}

func TestSelectCommitteeDeterministic(t *testing.T) {
	epoch := Epoch{ID: 4, Witnesses: roster(20), MinCommitteeSize: 5}
	id := HashClaimInfo(ClaimInfo{Provider: "http", Context: `"CreditScore":"700"`})

	first, err := SelectCommittee(epoch, id, 1700000000)
	require.NoError(t, err)
	second, err := SelectCommittee(epoch, id, 1700000000)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 5)

	differs := false
	for _, ts := range []uint32{1700000001, 1700000002, 1700000003} {
		other, err := SelectCommittee(epoch, id, ts)
		require.NoError(t, err)
		if !committeesEqual(first, other) {
			differs = true
		}
	}
	require.True(t, differs, "changing the timestamp should change the committee")

	changedEpoch := epoch
	changedEpoch.ID = 5
	other, err := SelectCommittee(changedEpoch, id, 1700000000)
	require.NoError(t, err)
	require.Len(t, other, 5)
}

// Historical claims stay verifiable only while this vector holds.
func TestSelectCommitteeKnownVector(t *testing.T) {
	w := roster(20)
	epoch := Epoch{ID: 4, Witnesses: w, MinCommitteeSize: 5}
	id := common.HexToHash("0xc0ffee")

	require.Equal(t,
		common.HexToHash("0x98b5badd4e59a9d3f4a73e1a6770ab2ffdc416a20c33aa61e0dd0da4c169d9b0"),
		CommitteeSeed(epoch, id, 1700000000),
	)

	// windows 0x98b5badd%20=5, 0x4e59a9d3%19=6, 0xf4a73e1a%18=4, 0x6770ab2f%17=8, 0xfdc416a2%16=2
	committee, err := SelectCommittee(epoch, id, 1700000000)
	require.NoError(t, err)
	require.Equal(t, []Witness{w[5], w[6], w[4], w[8], w[2]}, committee)
}

func TestSelectCommitteeNoRepeats(t *testing.T) {
	for size := 0; size <= 8; size++ {
		epoch := Epoch{ID: 1, Witnesses: roster(8), MinCommitteeSize: uint8(size)}
		committee, err := SelectCommittee(epoch, common.HexToHash("0xbeef"), 42)
		require.NoError(t, err)
		require.Len(t, committee, size)

		seen := map[common.Address]bool{}
		for _, m := range committee {
			require.False(t, seen[m.Address], "witness %s selected twice", m.Address.Hex())
			seen[m.Address] = true
		}
	}
}

func TestSelectCommitteeInsufficientWitnesses(t *testing.T) {
	epoch := Epoch{ID: 1, Witnesses: roster(3), MinCommitteeSize: 4}
	_, err := SelectCommittee(epoch, common.HexToHash("0x01"), 1)
	require.ErrorIs(t, err, ErrInsufficientWitnesses)

	_, err = SelectCommittee(Epoch{ID: 2, MinCommitteeSize: 1}, common.HexToHash("0x01"), 1)
	require.ErrorIs(t, err, ErrInsufficientWitnesses)
}

func TestCommitteeSeedInput(t *testing.T) {
	epoch := Epoch{ID: 7, MinCommitteeSize: 2}
	input := CommitteeSeedInput(epoch, common.HexToHash("0x0a"), 99)
	require.Equal(t,
		"0x000000000000000000000000000000000000000000000000000000000000000a\n7\n2\n99",
		string(input),
	)
}

func committeesEqual(a, b []Witness) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
