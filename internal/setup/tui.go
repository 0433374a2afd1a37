// Package setup provides the interactive terminal wizard that produces a
// backtest config file.
package setup

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/lobsim/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)
)

// RunTUI launches the configuration wizard and writes the result to outPath.
func RunTUI(outPath string) error {
	var (
		symbol        string
		dataFile      string
		journalDir    string
		fillRateStr   string
		slippageStr   string
		rejectionStr  string
		marginStr     string
		initialCash   string
		seedStr       string
		orderSizeStr  string
		spreadStr     string
		takeProfitStr string
		stopLossStr   string
		quoteTTLStr   string
		onDataError   string
		confirm       bool
	)

	// defaults
	symbol = "BTCUSDT"
	dataFile = "snapshots.jsonl"
	fillRateStr = "0.95"
	slippageStr = "0.5"
	rejectionStr = "0.02"
	marginStr = "0.5"
	initialCash = "10000"
	seedStr = "1"
	orderSizeStr = "0.005"
	spreadStr = "0.001"
	takeProfitStr = "20"
	stopLossStr = "50"
	quoteTTLStr = "5m"
	onDataError = string(config.DataErrorSkip)

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LOBSIM CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Set up a deterministic backtest run.\n"))

	fmt.Println(stepStyle.Render("STEP 1: DATA"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Symbol").
				Description("Exchange symbol, e.g. BTCUSDT").
				Value(&symbol).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("symbol cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Snapshot File").
				Description("Path to the recorded JSONL snapshot file").
				Value(&dataFile).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("data file cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Journal Directory").
				Description("WAL directory for the fill journal (empty disables)").
				Value(&journalDir),
			huh.NewSelect[string]().
				Title("On Malformed Snapshot").
				Options(
					huh.NewOption("Skip the tick", string(config.DataErrorSkip)),
					huh.NewOption("Abort the run", string(config.DataErrorAbort)),
				).
				Value(&onDataError),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LOBSIM CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: FRICTION MODEL"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Fill Rate").
				Description("Probability an eligible order fills, 0-1").
				Value(&fillRateStr).
				Validate(validateProbability),
			huh.NewInput().
				Title("Slippage (bps)").
				Description("Adverse price deviation on aggressive fills").
				Value(&slippageStr).
				Validate(validateNonNegative),
			huh.NewInput().
				Title("Rejection Rate").
				Description("Probability an order is randomly rejected, 0-1").
				Value(&rejectionStr).
				Validate(validateProbability),
			huh.NewInput().
				Title("Margin Rate").
				Description("Max exposure as a fraction of equity, (0,1]").
				Value(&marginStr).
				Validate(validateProbability),
			huh.NewInput().
				Title("Initial Cash").
				Value(&initialCash).
				Validate(validatePositive),
			huh.NewInput().
				Title("RNG Seed").
				Description("Same seed reproduces the run exactly").
				Value(&seedStr).
				Validate(func(s string) error {
					_, err := strconv.ParseInt(s, 10, 64)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LOBSIM CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: MARKET MAKER"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Order Size").
				Description("Base quantity per quote").
				Value(&orderSizeStr).
				Validate(validatePositive),
			huh.NewInput().
				Title("Quoted Spread").
				Description("Full spread around mid as a fraction, e.g. 0.001").
				Value(&spreadStr).
				Validate(validatePositive),
			huh.NewInput().
				Title("Take Profit (bps)").
				Description("0 disables").
				Value(&takeProfitStr).
				Validate(validateNonNegative),
			huh.NewInput().
				Title("Stop Loss (bps)").
				Description("0 disables").
				Value(&stopLossStr).
				Validate(validateNonNegative),
			huh.NewInput().
				Title("Quote TTL").
				Description("Duration string (e.g. 30s, 5m), 0 disables expiry").
				Value(&quoteTTLStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LOBSIM CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Symbol: %s\nData: %s\nFill rate: %s\nSlippage: %s bps\nSpread: %s\nSeed: %s\n",
		symbol, dataFile, fillRateStr, slippageStr, spreadStr, seedStr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	cfg := config.AppConfig{
		Symbol:     symbol,
		DataFile:   dataFile,
		JournalDir: journalDir,
		Backtest:   config.DefaultBacktestConfig(),
		Strategy: config.StrategyConfig{
			Name:        "marketmaker",
			MarketMaker: config.DefaultMarketMakerConfig(),
		},
	}

	cfg.Backtest.FillRate = mustFloat(fillRateStr)
	cfg.Backtest.SlippageBps = mustDecimal(slippageStr)
	cfg.Backtest.RejectionRate = mustFloat(rejectionStr)
	cfg.Backtest.MarginRate = mustDecimal(marginStr)
	cfg.Backtest.InitialCash = mustDecimal(initialCash)
	cfg.Backtest.Seed, _ = strconv.ParseInt(seedStr, 10, 64)
	cfg.Backtest.OnDataError = config.DataErrorPolicy(onDataError)

	cfg.Strategy.MarketMaker.OrderSize = mustDecimal(orderSizeStr)
	cfg.Strategy.MarketMaker.SpreadPercent = mustDecimal(spreadStr)
	cfg.Strategy.MarketMaker.TakeProfitBps = mustDecimal(takeProfitStr)
	cfg.Strategy.MarketMaker.StopLossBps = mustDecimal(stopLossStr)
	cfg.Strategy.MarketMaker.QuoteTTL, _ = time.ParseDuration(quoteTTLStr)

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.Save(outPath, cfg); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", outPath)))
	return nil
}

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func mustDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func validateProbability(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateNonNegative(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must be non-negative")
	}
	return nil
}

func validatePositive(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}
