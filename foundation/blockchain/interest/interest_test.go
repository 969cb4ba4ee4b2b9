package interest_test

import (
	"testing"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/interest"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_TableDigest(t *testing.T) {
	t.Log("Given the need to validate the accrual table against the baked-in digest.")
	{
		t.Logf("\tTest 0:\tWhen hashing the canonical table dump.")
		{
			if err := interest.VerifyTable(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould match the baked-in digest: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould match the baked-in digest.", success)

			if digest := interest.DigestTable(); digest != interest.TableDigest {
				t.Fatalf("\t%s\tTest 0:\tShould compute digest %d, got %d.", failed, interest.TableDigest, digest)
			}
			t.Logf("\t%s\tTest 0:\tShould compute digest %d.", success, interest.TableDigest)
		}
	}
}

func Test_EffectiveValueBounds(t *testing.T) {
	type table struct {
		name   string
		value  int64
		h0, h1 int32
	}

	tt := []table{
		{name: "zero elapse", value: 100 * database.COIN, h0: 50, h1: 50},
		{name: "one day", value: 100 * database.COIN, h0: 0, h1: interest.OneDay},
		{name: "one year", value: 100 * database.COIN, h0: 0, h1: interest.MaxPeriod},
		{name: "small value", value: 1, h0: 0, h1: interest.OneDay},
	}

	t.Log("Given the need to validate the effective value never shrinks.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen valuing %d created at %d as of %d.", testID, tst.value, tst.h0, tst.h1)
			{
				f := func(t *testing.T) {
					got := interest.GetInterest(tst.value, tst.h0, tst.h1)

					if got < tst.value {
						t.Fatalf("\t%s\tTest %d:\tShould never fall below the face value: got %d.", failed, testID, got)
					}
					t.Logf("\t%s\tTest %d:\tShould never fall below the face value.", success, testID)

					if tst.h1 <= tst.h0 && got != tst.value {
						t.Fatalf("\t%s\tTest %d:\tShould equal face value with no elapsed blocks: got %d.", failed, testID, got)
					}
					if tst.h1 > tst.h0 && tst.value >= database.COIN && got == tst.value {
						t.Fatalf("\t%s\tTest %d:\tShould accrue positive interest.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould accrue correctly at the boundary.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_HeightIndependence(t *testing.T) {
	t.Log("Given the need to validate interest depends only on elapsed periods.")
	{
		const value = 7 * database.COIN

		for testID, shift := range []int32{0, 1, 1000, 500_000} {
			t.Logf("\tTest %d:\tWhen shifting a %d block accrual by %d.", testID, interest.OneDay, shift)
			{
				base := interest.GetInterest(value, 0, interest.OneDay)
				shifted := interest.GetInterest(value, shift, shift+interest.OneDay)

				if base != shifted {
					t.Fatalf("\t%s\tTest %d:\tShould accrue identically: got %d, exp %d.", failed, testID, shifted, base)
				}
				t.Logf("\t%s\tTest %d:\tShould accrue identically.", success, testID)
			}
		}
	}
}

func Test_Saturation(t *testing.T) {
	t.Log("Given the need to validate accrual saturates at the maximum period.")
	{
		const value = 100 * database.COIN

		t.Logf("\tTest 0:\tWhen valuing past the maximum period.")
		{
			atMax := interest.GetInterest(value, 0, interest.MaxPeriod)
			pastMax := interest.GetInterest(value, 0, interest.MaxPeriod+1)
			farPast := interest.GetInterest(value, 0, interest.MaxPeriod*3)

			if atMax != pastMax || atMax != farPast {
				t.Fatalf("\t%s\tTest 0:\tShould clamp to the maximum period: %d, %d, %d.", failed, atMax, pastMax, farPast)
			}
			t.Logf("\t%s\tTest 0:\tShould clamp to the maximum period.", success)
		}

		t.Logf("\tTest 1:\tWhen valuing with malformed heights.")
		{
			if got := interest.GetInterest(value, 10, 5); got != value {
				t.Fatalf("\t%s\tTest 1:\tShould return the face value unchanged: got %d.", failed, got)
			}
			if got := interest.GetInterest(value, -1, 5); got != value {
				t.Fatalf("\t%s\tTest 1:\tShould return the face value unchanged: got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould return the face value unchanged.", success)
		}
	}
}

func Test_RateTableBoundary(t *testing.T) {
	t.Log("Given the need to validate the documented rate boundary scenario.")
	{
		const value = 100 * database.COIN

		t.Logf("\tTest 0:\tWhen valuing 100 coins from height 0.")
		{
			if got := interest.GetInterest(value, 0, 0); got != value {
				t.Fatalf("\t%s\tTest 0:\tShould be unchanged at zero elapse: got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould be unchanged at zero elapse.", success)

			oneDay := interest.GetInterest(value, 0, interest.OneDay)
			if oneDay != value+interest.RateForAmount(interest.OneDay, value) {
				t.Fatalf("\t%s\tTest 0:\tShould match the rate table at one day.", failed)
			}
			if oneDay <= value {
				t.Fatalf("\t%s\tTest 0:\tShould accrue positive interest over one day.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould match the rate table at one day.", success)

			oneYear := interest.GetInterest(value, 0, interest.MaxPeriod)
			if oneYear != value+interest.RateForAmount(interest.MaxPeriod, value) {
				t.Fatalf("\t%s\tTest 0:\tShould match the rate table at one year.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould match the rate table at one year.", success)

			// The yearly rate compounds to roughly 10.1%.
			yearly := oneYear - value
			if yearly < 10*database.COIN || yearly > 11*database.COIN {
				t.Fatalf("\t%s\tTest 0:\tShould accrue roughly 10.1%% over a year: got %d.", failed, yearly)
			}
			t.Logf("\t%s\tTest 0:\tShould accrue roughly 10.1%% over a year.", success)
		}
	}
}
