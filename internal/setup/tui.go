// Package setup runs the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/tradeflow/config"
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
			MarginTop(1).
			MarginBottom(0)
)

// Answers values collected by the wizard.
type Answers struct {
	Venue       string
	Quote       string
	Capital     string
	Interval    string
	Providers   []string
	Storage     string
	RedisAddr   string
	OracleURL   string
	Model       string
	MinPosition string
	MaxPosition string
	MaxPosCount string
	WebAddr     string
}

// DefaultAnswers values preselected in the wizard.
func DefaultAnswers() Answers {
	return Answers{
		Venue:       config.VenuePaper,
		Quote:       "USDT",
		Capital:     "1000",
		Interval:    "1m",
		Providers:   []string{config.ProviderBinance, config.ProviderBybit},
		Storage:     config.StorageWAL,
		OracleURL:   "https://openrouter.ai/api/v1/chat/completions",
		Model:       "deepseek/deepseek-chat",
		MinPosition: "10",
		MaxPosition: "200",
		MaxPosCount: "5",
		WebAddr:     ":8080",
	}
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := DefaultAnswers()
	confirm := false

	step := func(title string) {
		fmt.Print("\033[H\033[2J") // clear screen
		fmt.Println(headerStyle.Render("TRADEFLOW CONFIG WIZARD"))
		fmt.Println(stepStyle.Render(title))
	}

	step("STEP 1: VENUE")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Paper trading fills at live prices without touching an exchange.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should orders go?").
				Options(
					huh.NewOption("Paper trading", config.VenuePaper),
					huh.NewOption("Binance spot", config.VenueBinance),
				).
				Value(&a.Venue),
			huh.NewMultiSelect[string]().
				Title("Market data providers, in fallback order").
				Options(
					huh.NewOption("Binance", config.ProviderBinance).Selected(true),
					huh.NewOption("Bybit", config.ProviderBybit).Selected(true),
				).
				Value(&a.Providers),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: CAPITAL")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Quote currency").
				Value(&a.Quote).
				Validate(notEmpty("quote currency")),
			huh.NewInput().
				Title("Starting capital").
				Description("In the quote currency").
				Value(&a.Capital).
				Validate(positiveDecimal),
			huh.NewInput().
				Title("Cycle interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&a.Interval).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: RISK")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Min position size").
				Value(&a.MinPosition).
				Validate(positiveDecimal),
			huh.NewInput().
				Title("Max position size").
				Value(&a.MaxPosition).
				Validate(positiveDecimal),
			huh.NewInput().
				Title("Max open positions").
				Value(&a.MaxPosCount).
				Validate(positiveInt),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 4: ORACLE")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render(
		fmt.Sprintf("Set %s to use the LLM, otherwise rule based analysis is used.\n", config.EnvLLMAPIKey)))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("LLM API URL").
				Value(&a.OracleURL),
			huh.NewInput().
				Title("Model Name").
				Value(&a.Model),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 5: STORAGE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should positions and trades be stored?").
				Options(
					huh.NewOption("Local write-ahead log", config.StorageWAL),
					huh.NewOption(fmt.Sprintf("PostgreSQL (%s)", config.EnvPostgresDSN), config.StoragePostgres),
				).
				Value(&a.Storage),
			huh.NewInput().
				Title("Redis address for the market data cache").
				Description("Leave empty to disable").
				Value(&a.RedisAddr),
			huh.NewInput().
				Title("Status API address").
				Value(&a.WebAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Venue: %s\nProviders: %s\nCapital: %s %s\nInterval: %s\nPositions: %s..%s, max %s\nStorage: %s\n",
		a.Venue, strings.Join(a.Providers, ", "), a.Capital, a.Quote, a.Interval,
		a.MinPosition, a.MaxPosition, a.MaxPosCount, a.Storage,
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
		return errors.New("setup cancelled by user")
	}

	if err := Write(path, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

// Write renders the answers as a YAML config file at path.
func Write(path string, a Answers) error {
	tmp, err := a.ConfigTmp()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "failed to save config file %s", path)
	}
	return nil
}

// ConfigTmp converts the answers into the raw config layout.
func (a Answers) ConfigTmp() (config.ConfigTmp, error) {
	interval, err := time.ParseDuration(a.Interval)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrapf(err, "invalid interval %q", a.Interval)
	}
	var maxPositions int
	if _, err := fmt.Sscanf(a.MaxPosCount, "%d", &maxPositions); err != nil {
		return config.ConfigTmp{}, errors.Wrapf(err, "invalid max open positions %q", a.MaxPosCount)
	}

	var tmp config.ConfigTmp
	tmp.Quote = strings.ToUpper(a.Quote)
	tmp.Capital = a.Capital
	tmp.Interval = interval
	tmp.Venue = a.Venue
	tmp.Providers = a.Providers
	tmp.Storage.Driver = a.Storage
	tmp.Cache.RedisAddr = a.RedisAddr
	tmp.Oracle.APIURL = a.OracleURL
	tmp.Oracle.Model = a.Model
	tmp.Risk.MinPosition = a.MinPosition
	tmp.Risk.MaxPosition = a.MaxPosition
	tmp.Pipeline.MaxPositions = maxPositions
	tmp.Web.Addr = a.WebAddr
	return tmp, nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func positiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func positiveInt(s string) error {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 1 {
		return fmt.Errorf("must be a whole number above zero")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}
