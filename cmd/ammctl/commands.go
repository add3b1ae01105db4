package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aman-zulfiqar/orbital-amm/internal/amm"
	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/aman-zulfiqar/orbital-amm/internal/registry"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type tradeOutput struct {
	TokenIn       string   `json:"token_in"`
	TokenOut      string   `json:"token_out"`
	AmountIn      string   `json:"amount_in"`
	AmountOut     string   `json:"amount_out"`
	PriceBefore   string   `json:"price_before"`
	PriceAfter    string   `json:"price_after"`
	ExchangeRate  string   `json:"exchange_rate"`
	PriceImpactBP uint64   `json:"price_impact_bp"`
	Segments      []string `json:"segments"`
	Error         string   `json:"error,omitempty"`
	Kind          string   `json:"kind,omitempty"`
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(lvl)
	return logger, nil
}

// loadRegistry builds a registry from --pools-file. Nothing is persisted;
// every command works on a fresh copy of the file.
func loadRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	path, _ := cmd.Flags().GetString("pools-file")
	level, _ := cmd.Flags().GetString("log-level")
	tolerance, _ := cmd.Flags().GetUint64("tolerance-bp")

	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(cmd.ErrOrStderr())

	reg := registry.New(logger)
	reg.SetDefaultTolerance(tolerance)
	if _, err := reg.LoadFile(path); err != nil {
		return nil, err
	}
	return reg, nil
}

// resolvePool accepts a pool ID or a pool name.
func resolvePool(reg *registry.Registry, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("--pool is required")
	}
	list, err := reg.List()
	if err != nil {
		return "", err
	}
	for _, s := range list {
		if s.ID == ref || s.Name == ref {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", registry.ErrPoolNotFound, ref)
}

func pair(cmd *cobra.Command) (pool, in, out string, err error) {
	pool, _ = cmd.Flags().GetString("pool")
	in, _ = cmd.Flags().GetString("in")
	out, _ = cmd.Flags().GetString("out")
	if in == "" || out == "" {
		return "", "", "", errors.New("--in and --out are required")
	}
	return pool, in, out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func amountFlag(cmd *cobra.Command, name string, required bool) (*uint256.Int, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		if required {
			return nil, fmt.Errorf("--%s is required", name)
		}
		return nil, nil
	}
	v, err := fixedpoint.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

func toTradeOutput(in, out string, info *amm.TradeInfo) tradeOutput {
	o := tradeOutput{
		TokenIn:       in,
		TokenOut:      out,
		AmountIn:      fixedpoint.Format(info.AmountIn),
		AmountOut:     fixedpoint.Format(info.AmountOut),
		PriceBefore:   fixedpoint.Format(info.PriceBefore),
		PriceAfter:    fixedpoint.Format(info.PriceAfter),
		ExchangeRate:  fixedpoint.Format(info.ExchangeRate),
		PriceImpactBP: info.PriceImpactBP,
	}
	for _, s := range info.Segments {
		seg := fmt.Sprintf("%s -> %s @ %s", fixedpoint.Format(s.AmountIn), fixedpoint.Format(s.AmountOut), fixedpoint.Format(s.Liquidity))
		if s.Crossed {
			seg += " (crossed)"
		}
		o.Segments = append(o.Segments, seg)
	}
	return o
}

func runPoolID(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("pools-file")
	defs, err := registry.LoadDefinitions(path)
	if err != nil {
		return err
	}
	for _, def := range defs {
		id, err := def.ID()
		if err != nil {
			return fmt.Errorf("pool %s: %w", def.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", def.Name, id)
	}
	return nil
}

func runPrice(cmd *cobra.Command, _ []string) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	ref, in, out, err := pair(cmd)
	if err != nil {
		return err
	}
	id, err := resolvePool(reg, ref)
	if err != nil {
		return err
	}
	size, err := amountFlag(cmd, "size", true)
	if err != nil {
		return err
	}

	price, err := reg.Price(id, in, out)
	if err != nil {
		return err
	}
	res := map[string]string{
		"pool_id": id,
		"price":   fixedpoint.Format(price),
	}
	if eff, err := reg.EffectivePrice(id, in, out, size); err == nil {
		res["effective_price"] = fixedpoint.Format(eff)
		res["size"] = fixedpoint.Format(size)
	}
	return printJSON(cmd, res)
}

func runQuote(cmd *cobra.Command, _ []string) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	ref, in, out, err := pair(cmd)
	if err != nil {
		return err
	}
	id, err := resolvePool(reg, ref)
	if err != nil {
		return err
	}
	amount, err := amountFlag(cmd, "amount", true)
	if err != nil {
		return err
	}
	minOut, err := amountFlag(cmd, "min-out", false)
	if err != nil {
		return err
	}
	maxImpact, _ := cmd.Flags().GetUint64("max-impact-bp")

	info, err := reg.Quote(id, registry.Trade{
		TokenIn:          in,
		TokenOut:         out,
		AmountIn:         amount,
		MinAmountOut:     minOut,
		MaxPriceImpactBP: maxImpact,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, toTradeOutput(in, out, info))
}

// parseTrade splits IN:OUT:AMOUNT.
func parseTrade(s string) (registry.Trade, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return registry.Trade{}, fmt.Errorf("trade %q: want IN:OUT:AMOUNT", s)
	}
	amount, err := fixedpoint.Parse(parts[2])
	if err != nil {
		return registry.Trade{}, fmt.Errorf("trade %q: %w", s, err)
	}
	return registry.Trade{TokenIn: parts[0], TokenOut: parts[1], AmountIn: amount}, nil
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	ref, _ := cmd.Flags().GetString("pool")
	id, err := resolvePool(reg, ref)
	if err != nil {
		return err
	}
	specs, _ := cmd.Flags().GetStringArray("trade")
	if len(specs) == 0 {
		return errors.New("at least one --trade is required")
	}
	keepGoing, _ := cmd.Flags().GetBool("keep-going")

	trades := make([]registry.Trade, len(specs))
	for i, s := range specs {
		if trades[i], err = parseTrade(s); err != nil {
			return err
		}
	}

	results := make([]tradeOutput, 0, len(trades))
	var failed error
	for _, t := range trades {
		info, err := reg.Swap(id, t)
		if err != nil {
			results = append(results, tradeOutput{
				TokenIn:  t.TokenIn,
				TokenOut: t.TokenOut,
				AmountIn: fixedpoint.Format(t.AmountIn),
				Error:    err.Error(),
				Kind:     amm.KindOf(err),
			})
			failed = err
			if !keepGoing {
				break
			}
			continue
		}
		results = append(results, toTradeOutput(t.TokenIn, t.TokenOut, info))
	}

	snap, err := reg.Get(id)
	if err != nil {
		return err
	}
	verify := "ok"
	if err := reg.Verify(id); err != nil {
		verify = err.Error()
	}
	if err := printJSON(cmd, map[string]any{
		"trades": results,
		"pool":   snap,
		"verify": verify,
	}); err != nil {
		return err
	}
	if failed != nil && !keepGoing {
		return failed
	}
	return nil
}

func runVerify(cmd *cobra.Command, _ []string) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	list, err := reg.List()
	if err != nil {
		return err
	}
	bad := 0
	for _, s := range list {
		status := "ok"
		if err := reg.Verify(s.ID); err != nil {
			status = err.Error()
			bad++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", s.Name, s.Curve, status)
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d pools failed verification", bad, len(list))
	}
	return nil
}
