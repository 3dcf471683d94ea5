// Package report renders performance and positions for the terminal.
package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#F25F5C"}
	subtle    = lipgloss.AdaptiveColor{Light: "#9C9C9C", Dark: "#626262"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(0, 2).
			Bold(true).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(subtle).Width(22)
	gainStyle  = lipgloss.NewStyle().Foreground(special)
	lossStyle  = lipgloss.NewStyle().Foreground(warning)
)

// Performance renders aggregate metrics, the per-asset breakdown and strategy analyses.
func Performance(m domain.PerformanceMetrics, strategies []domain.StrategyAnalysis) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("TRADEFLOW PERFORMANCE"))
	b.WriteString("\n")

	if m.TotalTrades == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(subtle).Render("No closed trades yet."))
		b.WriteString("\n")
		return b.String()
	}

	rows := []string{
		row("Total trades", fmt.Sprintf("%d (%d won, %d lost)", m.TotalTrades, m.WinningTrades, m.LosingTrades)),
		row("Total P/L", pnl(m.TotalProfitLoss)),
		row("Win rate", percent(m.WinRate)),
		row("Average return", percent(m.AverageReturn)),
		row("Sharpe ratio", fmt.Sprintf("%.2f", m.SharpeRatio)),
		row("Max drawdown", percent(m.MaxDrawdown)),
		row("Current drawdown", percent(m.CurrentDrawdown)),
		row("Risk adjusted return", fmt.Sprintf("%.2f", m.RiskAdjustedReturn)),
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	if len(m.Assets) > 0 {
		b.WriteString(sectionStyle.Render("ASSETS"))
		b.WriteString("\n")
		symbols := make([]string, 0, len(m.Assets))
		for s := range m.Assets {
			symbols = append(symbols, s)
		}
		slices.Sort(symbols)

		lines := []string{fmt.Sprintf("%-10s %7s %9s %14s %10s", "SYMBOL", "TRADES", "WIN RATE", "P/L", "AVG HOLD")}
		for _, s := range symbols {
			a := m.Assets[s]
			lines = append(lines, fmt.Sprintf("%-10s %7d %9s %14s %9.1fh",
				s, a.TotalTrades, percent(a.WinRate), a.TotalProfitLoss.StringFixed(4), a.AverageHoldHours))
		}
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	for _, s := range strategies {
		if s.TotalTrades == 0 {
			continue
		}
		b.WriteString(sectionStyle.Render("STRATEGY " + strings.ToUpper(s.Strategy)))
		b.WriteString("\n")
		lines := []string{
			row("Trades", fmt.Sprintf("%d", s.TotalTrades)),
			row("Win rate", percent(s.WinRate)),
			row("Total P/L", pnl(s.TotalProfitLoss)),
			row("Average confidence", fmt.Sprintf("%.2f", s.AverageConfidence)),
		}
		for _, r := range s.Recommendations {
			lines = append(lines, "• "+r)
		}
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	return b.String()
}

// Positions renders open positions valued at their unit cost.
func Positions(positions []*domain.PortfolioPosition, cash decimal.Decimal, quote string) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("OPEN POSITIONS"))
	b.WriteString("\n")

	if len(positions) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(subtle).Render("No open positions."))
		b.WriteString("\n")
	} else {
		lines := []string{fmt.Sprintf("%-10s %16s %14s %14s %14s %8s", "SYMBOL", "QUANTITY", "UNIT COST", "REALIZED", "STOP LOSS", "TP HIT")}
		for _, p := range positions {
			stop := "-"
			if p.StopLoss != nil {
				stop = p.StopLoss.StringFixed(4)
			}
			hit := 0
			for _, tp := range p.TakeProfit {
				if tp.Triggered {
					hit++
				}
			}
			lines = append(lines, fmt.Sprintf("%-10s %16s %14s %14s %14s %8s",
				p.Asset.Symbol, p.Quantity.String(), p.UnitCost().StringFixed(4), p.RealizedPnL().StringFixed(4), stop, fmt.Sprintf("%d/%d", hit, len(p.TakeProfit))))
		}
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	b.WriteString(row("Cash", cash.StringFixed(2)+" "+quote))
	b.WriteString("\n")
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func pnl(d decimal.Decimal) string {
	s := d.StringFixed(4)
	if d.IsNegative() {
		return lossStyle.Render(s)
	}
	return gainStyle.Render("+" + s)
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}
