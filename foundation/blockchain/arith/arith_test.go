package arith_test

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/membercoin/membercoin/foundation/blockchain/arith"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_CompactRoundTrip(t *testing.T) {
	type table struct {
		name string
		bits uint32
	}

	tt := []table{
		{name: "mainnet limit", bits: 0x1d00ffff},
		{name: "regtest limit", bits: 0x207fffff},
		{name: "small", bits: 0x03123456},
		{name: "mid", bits: 0x181bc330},
	}

	t.Log("Given the need to validate the compact target encoding.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen round-tripping bits %08x.", testID, tst.bits)
			{
				f := func(t *testing.T) {
					target, negative, overflow := arith.SetCompact(tst.bits)
					if negative || overflow {
						t.Fatalf("\t%s\tTest %d:\tShould decode without flags.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould decode without flags.", success, testID)

					if got := arith.GetCompact(target); got != tst.bits {
						t.Fatalf("\t%s\tTest %d:\tShould round-trip: got %08x.", failed, testID, got)
					}
					t.Logf("\t%s\tTest %d:\tShould round-trip.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_CompactFlags(t *testing.T) {
	t.Log("Given the need to validate invalid compact encodings are flagged.")
	{
		t.Logf("\tTest 0:\tWhen decoding a negative target.")
		{
			_, negative, _ := arith.SetCompact(0x01810000)
			if !negative {
				t.Fatalf("\t%s\tTest 0:\tShould flag the sign bit.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould flag the sign bit.", success)
		}

		t.Logf("\tTest 1:\tWhen decoding an overflowing target.")
		{
			_, _, overflow := arith.SetCompact(0xff123456)
			if !overflow {
				t.Fatalf("\t%s\tTest 1:\tShould flag the overflow.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould flag the overflow.", success)
		}
	}
}

func Test_WorkForBits(t *testing.T) {
	t.Log("Given the need to validate the work represented by a target.")
	{
		t.Logf("\tTest 0:\tWhen computing work for the mainnet limit.")
		{
			work := arith.WorkForBits(0x1d00ffff)
			exp := uint256.NewInt(0x100010001)

			if work.Cmp(exp) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould compute %s, got %s.", failed, exp, work)
			}
			t.Logf("\t%s\tTest 0:\tShould compute %s.", success, exp)
		}

		t.Logf("\tTest 1:\tWhen computing work for invalid bits.")
		{
			if work := arith.WorkForBits(0x01810000); !work.IsZero() {
				t.Fatalf("\t%s\tTest 1:\tShould carry zero work: got %s.", failed, work)
			}
			if work := arith.WorkForBits(0); !work.IsZero() {
				t.Fatalf("\t%s\tTest 1:\tShould carry zero work for a zero target.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould carry zero work.", success)
		}

		t.Logf("\tTest 2:\tWhen comparing easier and harder targets.")
		{
			easy := arith.WorkForBits(0x207fffff)
			hard := arith.WorkForBits(0x1d00ffff)

			if easy.Cmp(hard) >= 0 {
				t.Fatalf("\t%s\tTest 2:\tShould order by difficulty: easy %s, hard %s.", failed, easy, hard)
			}
			t.Logf("\t%s\tTest 2:\tShould order by difficulty.", success)
		}
	}
}

func Test_HashToUint256(t *testing.T) {
	t.Log("Given the need to validate the little-endian hash interpretation.")
	{
		t.Logf("\tTest 0:\tWhen interpreting a hash with one high byte.")
		{
			var hash [32]byte
			hash[31] = 0x80

			got := arith.HashToUint256(hash)
			exp := new(uint256.Int).Lsh(uint256.NewInt(0x80), 31*8)

			if got.Cmp(exp) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould place the last byte highest: got %s.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould place the last byte highest.", success)
		}
	}
}
