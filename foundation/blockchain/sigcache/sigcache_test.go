package sigcache_test

import (
	"sync"
	"testing"

	"github.com/membercoin/membercoin/foundation/blockchain/sigcache"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_AddContains(t *testing.T) {
	t.Log("Given the need to validate basic cache admission.")
	{
		t.Logf("\tTest 0:\tWhen adding a verified triple.")
		{
			cache := sigcache.New(1 << 20)

			var sighash [32]byte
			sighash[0] = 0x01
			pub := []byte{0x02, 0x03}
			sig := []byte{0x30, 0x44}

			if cache.Contains(sighash, pub, sig) {
				t.Fatalf("\t%s\tTest 0:\tShould miss before the add.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould miss before the add.", success)

			cache.Add(sighash, pub, sig)
			if !cache.Contains(sighash, pub, sig) {
				t.Fatalf("\t%s\tTest 0:\tShould hit after the add.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould hit after the add.", success)

			sig[1] = 0x45
			if cache.Contains(sighash, pub, sig) {
				t.Fatalf("\t%s\tTest 0:\tShould miss for a different signature.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould miss for a different signature.", success)
		}
	}
}

func Test_Bounded(t *testing.T) {
	t.Log("Given the need to validate the cache respects its byte budget.")
	{
		t.Logf("\tTest 0:\tWhen inserting past the budget.")
		{
			// Small budget so the eviction path runs.
			cache := sigcache.New(64 * 48)

			for i := 0; i < 10_000; i++ {
				var sighash [32]byte
				sighash[0] = byte(i)
				sighash[1] = byte(i >> 8)
				cache.Add(sighash, []byte{0x01}, []byte{byte(i)})
			}

			if cache.Len() > 10_000 {
				t.Fatalf("\t%s\tTest 0:\tShould never exceed the insert count.", failed)
			}
			if cache.Len() == 10_000 {
				t.Fatalf("\t%s\tTest 0:\tShould have evicted entries: %d held.", failed, cache.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould have evicted entries down to the budget.", success)
		}
	}
}

func Test_Concurrent(t *testing.T) {
	t.Log("Given the need to validate concurrent reads and writes.")
	{
		t.Logf("\tTest 0:\tWhen hammering the cache from many goroutines.")
		{
			cache := sigcache.New(1 << 20)

			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 1_000; i++ {
						var sighash [32]byte
						sighash[0] = byte(g)
						sighash[1] = byte(i)
						cache.Add(sighash, []byte{0x01}, []byte{0x02})
						cache.Contains(sighash, []byte{0x01}, []byte{0x02})
					}
				}(g)
			}
			wg.Wait()

			t.Logf("\t%s\tTest 0:\tShould survive concurrent access.", success)
		}
	}
}
