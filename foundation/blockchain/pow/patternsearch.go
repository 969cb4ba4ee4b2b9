package pow

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/membercoin/membercoin/foundation/blockchain/arith"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/signature"
)

// The pattern search is the memory-hard inner half of the mining algorithm.
// Seeded by the header's mid-hash, it derives a stream of short digests and
// records them in the caller's scratchpad, reporting every birthday
// collision as a (startLocation, finalCalculation) candidate pair. The
// search must touch the whole scratchpad to be effective, which is what
// makes it memory-hard.

// slotSize is the bytes per scratchpad slot: a 4 byte tag and the 4 byte
// nonce that produced it.
const slotSize = 8

// searchMultiplier scales how many nonces are enumerated relative to the
// number of scratchpad slots. A multiple above one forces collisions.
const searchMultiplier = 4

// Candidate is one (startLocation, finalCalculation) pair produced by the
// pattern search.
type Candidate struct {
	StartLocation    uint32
	FinalCalculation uint32
}

// patternSearch enumerates candidates for the specified mid-hash seed. The
// worker count must already be a power of two. Each worker owns the slots
// whose index is congruent to its id, so the scratchpad needs no locking
// and the candidate set does not depend on the worker count.
func patternSearch(midHash database.Hash, scratchpad []byte, workers int) []Candidate {
	nSlots := len(scratchpad) / slotSize
	// Round down to a power of two so slot selection is a mask.
	for nSlots&(nSlots-1) != 0 {
		nSlots &= nSlots - 1
	}
	if nSlots == 0 || workers <= 0 {
		return nil
	}

	for i := range scratchpad[:nSlots*slotSize] {
		scratchpad[i] = 0
	}

	nonces := uint32(nSlots * searchMultiplier)
	mask := uint32(nSlots - 1)

	results := make([][]Candidate, workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()

			var buf [36]byte
			copy(buf[:32], midHash[:])

			var found []Candidate
			for nonce := uint32(0); nonce < nonces; nonce++ {
				binary.LittleEndian.PutUint32(buf[32:], nonce)
				digest := signature.HashBlake3(buf[:])

				slot := binary.LittleEndian.Uint32(digest[0:4]) & mask
				if int(slot)%workers != worker {
					continue
				}

				tag := binary.LittleEndian.Uint32(digest[4:8])

				// The slot index is the birthday; the low tag byte confirms
				// the collision so slot reuse alone doesn't qualify.
				cell := scratchpad[slot*slotSize : slot*slotSize+slotSize]
				prevTag := binary.LittleEndian.Uint32(cell[0:4])
				prevNoncePlus1 := binary.LittleEndian.Uint32(cell[4:8])

				if prevNoncePlus1 != 0 && prevNoncePlus1-1 != nonce && (prevTag^tag)&0xff == 0 {
					found = append(found, Candidate{
						StartLocation:    prevNoncePlus1 - 1,
						FinalCalculation: nonce,
					})
				}

				binary.LittleEndian.PutUint32(cell[0:4], tag)
				binary.LittleEndian.PutUint32(cell[4:8], nonce+1)
			}

			results[worker] = found
		}(w)
	}

	wg.Wait()

	var all []Candidate
	for _, found := range results {
		all = append(all, found...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartLocation != all[j].StartLocation {
			return all[i].StartLocation < all[j].StartLocation
		}
		return all[i].FinalCalculation < all[j].FinalCalculation
	})

	return all
}

// FindBestPatternHash runs the pattern search for the header and selects
// the candidate minimizing the outer hash. It returns that hash, the
// winning pair, and the number of collisions found. A zero worker request
// short-circuits to the worst case sentinel.
func FindBestPatternHash(header database.BlockHeader, scratchpad []byte, workers int) (database.Hash, Candidate, int) {
	smallestHashSoFar := database.Hash(signature.MaxHash)
	var best Candidate

	if workers == 0 {
		return smallestHashSoFar, best, 0
	}

	// Workers can only be a power of two.
	newWorkers := 1
	for newWorkers < workers {
		newWorkers *= 2
	}
	workers = newWorkers

	midHash := header.MidHash()
	results := patternSearch(midHash, scratchpad, workers)

	smallest := arith.HashToUint256(smallestHashSoFar)
	for _, candidate := range results {
		fullHash := header.Hash()

		if arith.HashToUint256(fullHash).Cmp(smallest) < 0 {
			smallestHashSoFar = fullHash
			smallest = arith.HashToUint256(fullHash)
			best = candidate
		}
	}

	return smallestHashSoFar, best, len(results)
}
