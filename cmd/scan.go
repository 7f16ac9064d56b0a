package cmd

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scanJSON     bool
	scanBalances bool
	scanAddress  string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one detection cycle and print the opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := utils.GetLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		e, err := buildEngine(ctx, cfg, false, log)
		if err != nil {
			return err
		}
		defer e.Close()

		report := e.bot.RunOnce(ctx)
		if scanJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(report)

		if scanBalances {
			return printBalances(cmd, cfg, e, log)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the cycle report as JSON")
	scanCmd.Flags().BoolVar(&scanBalances, "balances", false, "print known token balances of the wallet")
	scanCmd.Flags().StringVar(&scanAddress, "address", "", "holder for --balances (default is the configured wallet)")
}

func printReport(r *bot.CycleReport) {
	color.Cyan("[INFO] snapshot %016x: %d entries, ETH $%s, gas %s gwei",
		r.Fingerprint, r.Entries, r.EthPriceUSD.StringFixed(2), r.GasPriceGwei.String())
	for venue, msg := range r.VenueErrors {
		color.Yellow("[WARNING] %s: %s", venue, msg)
	}

	if len(r.Opportunities) == 0 {
		color.Yellow("[WARNING] no opportunities")
		return
	}

	for _, opp := range r.Opportunities {
		line := fmt.Sprintf(" %-12s buy %-14s @ %-14s sell %-14s @ %-14s %6s%% ",
			opp.Pair.Key(),
			opp.BuyVenue, opp.BuyPrice.StringFixed(6),
			opp.SellVenue, opp.SellPrice.StringFixed(6),
			opp.ProfitPct.StringFixed(3))

		if opp.Estimate == nil {
			fmt.Println(line)
			continue
		}
		best := opp.Estimate.BestModel()
		line += fmt.Sprintf("net $%s (%s)", best.NetProfitUSD.StringFixed(2), best.Strategy)
		if best.IsProfitable {
			color.New(color.FgHiWhite, color.BgGreen).Println(line)
		} else {
			color.New(color.FgHiWhite, color.BgYellow).Println(line)
		}
	}

	for _, rej := range r.Rejections {
		color.Magenta("[REJECTED] %s: %s", rej.Pair, rej.Reason)
	}
	color.Green("[SUCCESS] %d opportunities, %d profitable", len(r.Opportunities), len(r.Profitable))
}

func printBalances(cmd *cobra.Command, cfg *config.Config, e *engine, log *zap.Logger) error {
	holder, err := balanceHolder(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	ledger := chain.NewLedger(e.client, e.client, nil, log.Named("ledger"))

	native, err := e.client.BalanceAt(ctx, holder, nil)
	if err != nil {
		return fmt.Errorf("failed to read native balance: %w", err)
	}
	color.Cyan("[INFO] balances of %s", holder.Hex())
	fmt.Printf(" %-8s %s\n", "ETH", units(native, 18).String())

	for _, t := range cfg.RunConfig().Tokens {
		bal, err := ledger.BalanceOf(ctx, t.Address, holder)
		if err != nil {
			color.Red("[ERROR] %s: %v", t.Symbol, err)
			continue
		}
		fmt.Printf(" %-8s %s\n", t.Symbol, units(bal, t.Decimals).String())
	}
	return nil
}

func balanceHolder(cfg *config.Config) (common.Address, error) {
	if scanAddress != "" {
		if !common.IsHexAddress(scanAddress) {
			return common.Address{}, types.Errorf(types.KindValidation, "balances", "invalid address %q", scanAddress)
		}
		return common.HexToAddress(scanAddress), nil
	}
	if cfg.PrivateKey == "" {
		return common.Address{}, types.Errorf(types.KindValidation, "balances", "set --address or %s", config.EnvPrivateKey)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return common.Address{}, types.NewError(types.KindValidation, "balances", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func units(amount *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

