package merkle_test

import (
	"crypto/sha256"
	"testing"

	"github.com/membercoin/membercoin/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// item implements the merkle Hashable interface over a plain string.
type item string

func (it item) Hash() ([]byte, error) {
	first := sha256.Sum256([]byte(it))
	second := sha256.Sum256(first[:])
	return second[:], nil
}

func (it item) Equals(other item) bool {
	return it == other
}

// =============================================================================

func Test_Tree(t *testing.T) {
	type table struct {
		name   string
		values []item
	}

	tt := []table{
		{name: "single", values: []item{"a"}},
		{name: "pair", values: []item{"a", "b"}},
		{name: "odd", values: []item{"a", "b", "c"}},
		{name: "larger", values: []item{"a", "b", "c", "d", "e", "f", "g"}},
	}

	t.Log("Given the need to validate merkle tree construction.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen building a tree over %d values.", testID, len(tst.values))
			{
				f := func(t *testing.T) {
					tree, err := merkle.NewTree(tst.values)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould build the tree: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould build the tree.", success, testID)

					if err := tree.Verify(); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould verify the tree: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould verify the tree.", success, testID)

					values := tree.Values()
					if len(values) != len(tst.values) {
						t.Fatalf("\t%s\tTest %d:\tShould return %d unique values, got %d.", failed, testID, len(tst.values), len(values))
					}
					t.Logf("\t%s\tTest %d:\tShould return the unique values.", success, testID)

					other, _ := merkle.NewTree(tst.values)
					if tree.RootHex() != other.RootHex() {
						t.Fatalf("\t%s\tTest %d:\tShould compute a deterministic root.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould compute a deterministic root.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_RootChanges(t *testing.T) {
	t.Log("Given the need to validate the root commits to the values.")
	{
		t.Logf("\tTest 0:\tWhen changing one value.")
		{
			tree, _ := merkle.NewTree([]item{"a", "b", "c", "d"})
			other, _ := merkle.NewTree([]item{"a", "b", "x", "d"})

			if tree.RootHex() == other.RootHex() {
				t.Fatalf("\t%s\tTest 0:\tShould change the root.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould change the root.", success)
		}

		t.Logf("\tTest 1:\tWhen building with no values.")
		{
			if _, err := merkle.NewTree([]item{}); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould refuse an empty tree.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse an empty tree.", success)
		}
	}
}

func Test_Proof(t *testing.T) {
	t.Log("Given the need to validate inclusion proofs.")
	{
		t.Logf("\tTest 0:\tWhen proving a value is in the tree.")
		{
			tree, _ := merkle.NewTree([]item{"a", "b", "c", "d", "e"})

			proof, order, err := tree.Proof(item("c"))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould produce a proof: %v", failed, err)
			}
			if len(proof) != len(order) || len(proof) == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould produce a usable proof.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould produce a proof.", success)

			if _, _, err := tree.Proof(item("zz")); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould refuse a proof for a missing value.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse a proof for a missing value.", success)
		}
	}
}
