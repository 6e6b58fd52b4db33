package cmd

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/liquid-miners/lm-engine/internal/config"
	"github.com/liquid-miners/lm-engine/pkg/proofs"
	"github.com/liquid-miners/lm-engine/internal/types/numbers"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	signProofKey           = "sign.private-key"
	signProofSender        = "sign.sender"
	signProofPoints        = "sign.points"
	signProofPool          = "sign.pool"
	signProofUid           = "sign.uid"
	signProofLastProofTime = "sign.last-proof-time"
)

// signProofCmd produces a signed proof an oracle would submit. Points are
// whole tokens and get scaled to 18 decimals; the nonce is time-prefixed
// with random tail digits.
var signProofCmd = &cobra.Command{
	Use:   "sign-proof",
	Short: "Sign a liquidity proof with an oracle private key",
	Run: func(cmd *cobra.Command, args []string) {
		initRunCmd(cmd)
		cfg := config.NewConfig()

		key, err := crypto.HexToECDSA(viper.GetString(config.KebabToSnakeCase(signProofKey)))
		if err != nil {
			log.Fatalf("invalid private key: %v", err)
		}

		points, ok := new(big.Int).SetString(viper.GetString(config.KebabToSnakeCase(signProofPoints)), 10)
		if !ok {
			log.Fatalf("invalid points value")
		}

		lastProofTime := viper.GetInt64(config.KebabToSnakeCase(signProofLastProofTime))
		if lastProofTime == 0 {
			lastProofTime = time.Now().Unix()
		}

		proof := &proofs.Proof{
			SenderAddress: common.HexToAddress(viper.GetString(config.KebabToSnakeCase(signProofSender))),
			TotalPoints:   new(big.Int).Mul(points, numbers.Wad),
			Nonce:         generateNonce(),
			LastProofTime: big.NewInt(lastProofTime),
			PoolAddress:   common.HexToAddress(viper.GetString(config.KebabToSnakeCase(signProofPool))),
			UidHash:       crypto.Keccak256Hash([]byte(viper.GetString(config.KebabToSnakeCase(signProofUid)))),
		}

		verifier := proofs.NewVerifier(new(big.Int).SetUint64(uint64(cfg.Chain)))
		if err := verifier.Sign(proof, key); err != nil {
			log.Fatalf("failed to sign proof: %v", err)
		}

		fmt.Printf("senderAddress: %s\n", proof.SenderAddress.Hex())
		fmt.Printf("totalPoints: %s\n", proof.TotalPoints.String())
		fmt.Printf("nonce: %s\n", proof.Nonce.String())
		fmt.Printf("lastProofTime: %d\n", lastProofTime)
		fmt.Printf("uidHash: %s\n", proof.UidHash.Hex())
		fmt.Printf("signature: %s\n", hexutil.Encode(proof.Signature))
	},
}

// generateNonce concatenates the unix millisecond timestamp with 14 random
// digits, matching the nonce shape attesters already produce.
func generateNonce() *big.Int {
	tail, err := rand.Int(rand.Reader, big.NewInt(1e14))
	if err != nil {
		tail = big.NewInt(0)
	}
	nonce := big.NewInt(time.Now().UnixMilli())
	nonce.Mul(nonce, big.NewInt(1e14))
	return nonce.Add(nonce, tail)
}

func init() {
	signProofCmd.Flags().String(signProofKey, "", "Hex-encoded oracle private key (no 0x prefix)")
	signProofCmd.Flags().String(signProofSender, "", "Liquidity provider address the proof attests for")
	signProofCmd.Flags().String(signProofPoints, "0", "Points earned, in whole tokens")
	signProofCmd.Flags().String(signProofPool, "", "Pool address the proof is bound to")
	signProofCmd.Flags().String(signProofUid, "", "Off-chain uid to hash into the proof")
	signProofCmd.Flags().Int64(signProofLastProofTime, 0, "Proof timestamp as unix seconds (default now)")
}
