package main

import (
	"encoding/json"
	"fmt"
	"os"

	"auction-oracle/internal/gate"
	"auction-oracle/internal/tracker"

	"github.com/spf13/cobra"
)

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func scanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single auction scan and print its counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			settler, err := a.tracker()
			if err != nil {
				return err
			}
			result, err := settler.TriggerScan(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func meetingsCommand() *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "List meetings for auctions created by a wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// listing reads storage only
			settler := tracker.NewTracker(nil, nil, nil, a.storage, a.storage, nil, tracker.Configuration{})
			meetings, err := settler.ListMeetingsForCreator(cmd.Context(), wallet)
			if err != nil {
				return err
			}
			return printJSON(meetings)
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "creator wallet address")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func redeemCommand() *cobra.Command {
	var request gate.RedeemRequest
	cmd := &cobra.Command{
		Use:   "redeem",
		Short: "Verify an NFT burn transaction and print the meeting credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			accessGate, err := a.gate()
			if err != nil {
				return err
			}
			credential, err := accessGate.VerifyAndRedeem(cmd.Context(), request)
			if err != nil {
				return fmt.Errorf("redeem rejected (%s): %w", gate.ReasonOf(err), err)
			}
			return printJSON(credential)
		},
	}
	cmd.Flags().Uint64Var(&request.AuctionID, "auction", 0, "auction id")
	cmd.Flags().Uint64Var(&request.NFTTokenID, "nft", 0, "burned NFT token id")
	cmd.Flags().StringVar(&request.Wallet, "wallet", "", "wallet that sent the burn transaction")
	cmd.Flags().StringVar(&request.TxHash, "tx", "", "burn transaction hash")
	cmd.Flags().StringVar(&request.CallerID, "caller", "", "caller identity recorded on the access event")
	cmd.Flags().StringVar(&request.GatePassNonce, "gate-pass", "", "gate pass nonce to consume")
	for _, name := range []string{"auction", "wallet", "tx"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func checkCommand() *cobra.Command {
	var (
		auctionID uint64
		nftID     uint64
		wallet    string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether a wallet can currently redeem a meeting",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			accessGate, err := a.gate()
			if err != nil {
				return err
			}
			redeemable, err := accessGate.CheckRedeemable(cmd.Context(), auctionID, nftID, wallet)
			if err != nil {
				return err
			}
			return printJSON(map[string]bool{"redeemable": redeemable})
		},
	}
	cmd.Flags().Uint64Var(&auctionID, "auction", 0, "auction id")
	cmd.Flags().Uint64Var(&nftID, "nft", 0, "NFT token id")
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address")
	_ = cmd.MarkFlagRequired("auction")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func gatePassCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatepass",
		Short: "Issue or clean up gate passes",
	}

	var request gate.GatePassRequest
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a single-use gate pass for a redeemable wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			accessGate, err := a.gate()
			if err != nil {
				return err
			}
			pass, err := accessGate.IssueGatePass(cmd.Context(), request)
			if err != nil {
				return err
			}
			return printJSON(pass)
		},
	}
	issue.Flags().Uint64Var(&request.AuctionID, "auction", 0, "auction id")
	issue.Flags().Uint64Var(&request.NFTTokenID, "nft", 0, "NFT token id")
	issue.Flags().StringVar(&request.Wallet, "wallet", "", "wallet address")
	issue.Flags().StringVar(&request.SubjectID, "subject", "", "subject the pass is issued to")
	_ = issue.MarkFlagRequired("auction")
	_ = issue.MarkFlagRequired("wallet")

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired, unused gate passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			accessGate, err := a.gate()
			if err != nil {
				return err
			}
			deleted, err := accessGate.CleanupGatePasses(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(map[string]int64{"deleted": deleted})
		},
	}

	cmd.AddCommand(issue, cleanup)
	return cmd
}
