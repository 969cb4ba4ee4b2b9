// Package commands contains the admin CLI command set.
package commands

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/membercoin/membercoin/foundation/blockchain/database"
	"github.com/membercoin/membercoin/foundation/blockchain/genesis"
	"github.com/membercoin/membercoin/foundation/blockchain/interest"
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative tooling for the node",
}

// Execute runs the admin command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(rateHashCmd)
	rootCmd.AddCommand(decodeBlockCmd)
	rootCmd.AddCommand(genesisCmd)
	rootCmd.AddCommand(keyGenCmd)
}

// =============================================================================

var rateHashCmd = &cobra.Command{
	Use:   "ratehash",
	Short: "Compute the interest rate table digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		digest := interest.DigestTable()
		fmt.Printf("rate table digest: %d\n", digest)

		if digest != interest.TableDigest {
			return fmt.Errorf("digest mismatch: exp %d", interest.TableDigest)
		}
		fmt.Println("digest matches the baked-in constant")
		return nil
	},
}

var decodeBlockCmd = &cobra.Command{
	Use:   "decodeblock [hex]",
	Short: "Decode a hex encoded block to JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("invalid block encoding: %w", err)
		}

		var block database.Block
		if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("decoding block: %w", err)
		}

		out, err := json.MarshalIndent(block, "", "  ")
		if err != nil {
			return err
		}

		fmt.Printf("hash: %s\n%s\n", block.Hash(), out)
		return nil
	},
}

var genesisCmd = &cobra.Command{
	Use:   "genesis [network]",
	Short: "Print a network's genesis block and parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := genesis.Network(args[0])
		if err != nil {
			return err
		}

		block := params.GenesisBlock()

		out, err := json.MarshalIndent(params, "", "  ")
		if err != nil {
			return err
		}

		fmt.Printf("%s\ngenesis hash: %s\ngenesis bytes: %s\n", out, block.Hash(), hex.EncodeToString(block.Bytes()))
		return nil
	},
}

var keyGenCmd = &cobra.Command{
	Use:   "keygen [path]",
	Short: "Generate a secp256k1 private key file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := crypto.GenerateKey()
		if err != nil {
			return err
		}

		if err := crypto.SaveECDSA(args[0], priv); err != nil {
			return err
		}

		pub := crypto.CompressPubkey(&priv.PublicKey)
		fmt.Fprintf(os.Stdout, "wrote %s\npubkey: %s\n", args[0], hex.EncodeToString(pub))
		return nil
	},
}
