package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/client"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "witness",
		Short:        "Witness side tooling for attestlend claims",
		SilenceUsage: true,
	}
	cmd.AddCommand(hashCmd(), signCmd(), committeeCmd())
	return cmd
}

type claimInfoFlags struct {
	provider   string
	parameters string
	context    string
}

func (f *claimInfoFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "claim provider, e.g. http")
	cmd.Flags().StringVar(&f.parameters, "parameters", "", "provider parameters")
	cmd.Flags().StringVar(&f.context, "context", "", "claim context")
	_ = cmd.MarkFlagRequired("provider")
}

func (f *claimInfoFlags) info() attestlend.ClaimInfo {
	return attestlend.ClaimInfo{
		Provider:   f.provider,
		Parameters: f.parameters,
		Context:    f.context,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func hashCmd() *cobra.Command {
	var info claimInfoFlags
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the identifier of a claim info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), attestlend.HashClaimInfo(info.info()).Hex())
			return err
		},
	}
	info.register(cmd)
	return cmd
}

type signOutput struct {
	Signer    string           `json:"signer"`
	Payload   string           `json:"payload"`
	Proof     attestlend.Proof `json:"proof"`
	Signature string           `json:"signature"`
}

func signCmd() *cobra.Command {
	var (
		info      claimInfoFlags
		key       string
		owner     string
		timestamp uint32
		epoch     uint32
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a claim and print a single signature proof",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			ownerAddress, err := attestlend.ParseAddress(owner)
			if err != nil {
				return err
			}

			claimInfo := info.info()
			claim := attestlend.CompleteClaimData{
				Identifier: attestlend.HashClaimInfo(claimInfo),
				Owner:      ownerAddress,
				TimestampS: timestamp,
				Epoch:      epoch,
			}
			signature, err := attestlend.SignClaim(claim, privateKey)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), signOutput{
				Signer:  attestlend.AddressString(crypto.PubkeyToAddress(privateKey.PublicKey)),
				Payload: string(attestlend.SerializeClaim(claim)),
				Proof: attestlend.Proof{
					ClaimInfo: claimInfo,
					SignedClaim: attestlend.SignedClaim{
						Claim:      claim,
						Signatures: []hexutil.Bytes{signature},
					},
				},
				Signature: hexutil.Encode(signature),
			})
		},
	}
	info.register(cmd)
	cmd.Flags().StringVar(&key, "key", "", "hex encoded witness private key")
	cmd.Flags().StringVar(&owner, "owner", "", "address the claim is about")
	cmd.Flags().Uint32Var(&timestamp, "timestamp", 0, "claim timestamp in seconds")
	cmd.Flags().Uint32Var(&epoch, "epoch", 0, "epoch the claim is made in")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("timestamp")
	_ = cmd.MarkFlagRequired("epoch")
	return cmd
}

type committeeOutput struct {
	Committee []attestlend.Witness `json:"committee"`
	Member    *bool                `json:"member,omitempty"`
}

func committeeCmd() *cobra.Command {
	var (
		node       string
		epoch      uint32
		identifier string
		timestamp  uint32
		address    string
	)
	cmd := &cobra.Command{
		Use:   "committee",
		Short: "Ask a node which witnesses must sign a claim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := attestlend.ParseIdentifier(identifier)
			if err != nil {
				return err
			}

			committee, err := client.New(node).Committee(cmd.Context(), epoch, id, timestamp)
			if err != nil {
				return err
			}

			out := committeeOutput{Committee: committee}
			if address != "" {
				self, err := attestlend.ParseAddress(address)
				if err != nil {
					return err
				}
				member := false
				for _, witness := range committee {
					if witness.Address == self {
						member = true
					}
				}
				out.Member = &member
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&node, "node", "", "node endpoint, e.g. https://lend.example.com")
	cmd.Flags().Uint32Var(&epoch, "epoch", 0, "epoch id, 0 for the current one")
	cmd.Flags().StringVar(&identifier, "identifier", "", "claim identifier")
	cmd.Flags().Uint32Var(&timestamp, "timestamp", 0, "claim timestamp in seconds")
	cmd.Flags().StringVar(&address, "address", "", "report whether this witness is on the committee")
	_ = cmd.MarkFlagRequired("node")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}
