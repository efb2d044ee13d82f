package qprelayd

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"log"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/common"
	"github.com/spf13/cobra"
)

var keyDescription *string
var blockType *string

func init() {
	keyDescription = KeygenCmd.Flags().String("desc", "", "Human-readable key description (optional)")
	blockType = KeygenCmd.Flags().String("block-type", common.RelayKeyArmoredBlock, "block type of armored file (optional)")
}

var KeygenCmd = &cobra.Command{
	Use:   "keygen [KEYFILE]",
	Short: "Create relay signer key at the specified path",
	Run:   runKeygen,
	Args:  cobra.ExactArgs(1),
}

func runKeygen(cmd *cobra.Command, args []string) {
	if err := common.LockMemory(); err != nil {
		log.Print(err)
	}
	common.SetRestrictiveUmask()

	log.Print("Creating new key at ", args[0])

	addr, err := generateKey(args[0], *keyDescription, *blockType)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(addr)
}

// generateKey writes a fresh secp256k1 key to filename and returns its address.
func generateKey(filename, description, blockType string) (string, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	if err := common.WriteArmoredKey(key, description, filename, blockType, false); err != nil {
		return "", fmt.Errorf("failed to write key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
