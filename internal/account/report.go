package account

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Report struct {
	StartDate   time.Time
	TotalPeriod time.Duration
	TotalTrades int

	NetProfit decimal.Decimal
	CAGR      decimal.Decimal

	AvgWin  decimal.Decimal
	AvgLoss decimal.Decimal

	MaxDrawdown          decimal.Decimal
	MaxDrawdownPercent   decimal.Decimal
	MaxDrawdownDays      time.Duration
	MaxConsecutiveLosses int

	SharpeRatio decimal.Decimal

	TotalFees decimal.Decimal
}

func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "===== Trading Report =====")
	fmt.Fprintf(w, "Start Date:            %s\n", r.StartDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Total Period:          %d days\n", r.TotalPeriod/(24*time.Hour))
	fmt.Fprintf(w, "Total Trades:          %d\n", r.TotalTrades)

	fmt.Fprintln(w, "\n-- Absolute Performance --")
	fmt.Fprintf(w, "Net Profit:            %s\n", r.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "CAGR:                  %s\n", r.CAGR.StringFixed(4))

	fmt.Fprintln(w, "\n-- Trade-Level Metrics --")
	fmt.Fprintf(w, "Avg Win:               %s\n", r.AvgWin.StringFixed(2))
	fmt.Fprintf(w, "Avg Loss:              %s\n", r.AvgLoss.StringFixed(2))

	fmt.Fprintln(w, "\n-- Drawdown Metrics --")
	fmt.Fprintf(w, "Max Drawdown:          %s\n", r.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(w, "Max Drawdown %%:        %s\n", r.MaxDrawdownPercent.StringFixed(4))
	fmt.Fprintf(w, "Max Drawdown Days:     %d\n", r.MaxDrawdownDays/(24*time.Hour))
	fmt.Fprintf(w, "Max Consecutive Losses:%d\n", r.MaxConsecutiveLosses)

	fmt.Fprintln(w, "\n-- Risk-Adjusted Metrics --")
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", r.SharpeRatio.StringFixed(4))

	fmt.Fprintln(w, "\n-- Costs --")
	fmt.Fprintf(w, "Total Fees:            %s\n", r.TotalFees.StringFixed(2))

	fmt.Fprintln(w, "==========================")
}

func generateReport(initialCash decimal.Decimal, snapshots []EquitySnapshot, trades []ClosedTrade, fills []Fill, riskFree decimal.Decimal) *Report {
	snapshots = append([]EquitySnapshot(nil), snapshots...)
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Time.Before(snapshots[j].Time) })

	report := &Report{TotalTrades: len(trades)}
	if len(snapshots) > 0 {
		report.StartDate = snapshots[0].Time
		report.TotalPeriod = snapshots[len(snapshots)-1].Time.Sub(snapshots[0].Time).Truncate(24 * time.Hour)
	}

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		report.NetProfit = calcNetProfit(initialCash, snapshots, &wg)
	}()
	go func() {
		report.CAGR = calcCAGR(snapshots, &wg)
	}()
	go func() {
		report.AvgWin, report.AvgLoss = calcAvgWinLoss(trades, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDays = calcDrawdownMetrics(snapshots, &wg)
	}()
	go func() {
		report.MaxConsecutiveLosses = calcMaxConsecutiveLosses(trades, &wg)
	}()
	go func() {
		report.SharpeRatio = calcSharpeRatio(snapshots, riskFree, &wg)
	}()
	wg.Wait()

	for _, f := range fills {
		report.TotalFees = report.TotalFees.Add(f.Fee)
	}
	return report
}

func calcNetProfit(initialCash decimal.Decimal, snapshots []EquitySnapshot, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(snapshots) == 0 {
		return decimal.Zero
	}
	return snapshots[len(snapshots)-1].Equity.Sub(initialCash)
}

func calcCAGR(snapshots []EquitySnapshot, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(snapshots) < 2 {
		return decimal.Zero
	}

	startSnap := snapshots[0]
	endSnap := snapshots[len(snapshots)-1]
	if !startSnap.Equity.IsPositive() {
		return decimal.Zero
	}

	// 365.25 days per year to account for leap years
	duration := endSnap.Time.Sub(startSnap.Time)
	years := duration.Hours() / (24.0 * 365.25)
	if years <= 0 {
		return decimal.Zero
	}

	ratio := endSnap.Equity.Div(startSnap.Equity)
	if !ratio.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0)
}

func calcAvgWinLoss(trades []ClosedTrade, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal) {
	defer wg.Done()

	sumWins, sumLosses := decimal.Zero, decimal.Zero
	winCount, lossCount := 0, 0
	for _, tr := range trades {
		switch {
		case tr.NetPnL.IsPositive():
			sumWins = sumWins.Add(tr.NetPnL)
			winCount++
		case tr.NetPnL.IsNegative():
			sumLosses = sumLosses.Add(tr.NetPnL.Abs())
			lossCount++
		}
	}

	avgWin, avgLoss := decimal.Zero, decimal.Zero
	if winCount > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(winCount)))
	}
	if lossCount > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(lossCount)))
	}
	return avgWin, avgLoss
}

func calcDrawdownMetrics(snapshots []EquitySnapshot, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, time.Duration) {
	defer wg.Done()

	peak := decimal.Zero
	var peakTime time.Time

	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for i, snap := range snapshots {
		if i == 0 || snap.Equity.GreaterThan(peak) || peak.IsZero() {
			peak = snap.Equity
			peakTime = snap.Time
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(snap.Equity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDPct = dd.Div(peak)
			maxDDDuration = snap.Time.Sub(peakTime)
		}
	}
	return maxDD, maxDDPct, maxDDDuration
}

func calcMaxConsecutiveLosses(trades []ClosedTrade, wg *sync.WaitGroup) int {
	defer wg.Done()

	sorted := append([]ClosedTrade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ClosedAt.Before(sorted[j].ClosedAt) })

	maxLossStreak, currentStreak := 0, 0
	for _, tr := range sorted {
		if tr.NetPnL.IsNegative() {
			currentStreak++
			maxLossStreak = max(maxLossStreak, currentStreak)
		} else {
			currentStreak = 0
		}
	}
	return maxLossStreak
}

// calcSharpeRatio annualises the Sharpe ratio of monthly excess returns.
func calcSharpeRatio(snapshots []EquitySnapshot, annualRiskFree decimal.Decimal, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	monthlyReturns := getMonthlyReturns(snapshots)
	if len(monthlyReturns) < 2 {
		return decimal.Zero
	}

	// rf_monthly = (1 + rf_annual)^(1/12) - 1
	rfMonthly := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/12.0) - 1.0

	excess := make([]float64, 0, len(monthlyReturns))
	var sum float64
	for _, r := range monthlyReturns {
		x := r.InexactFloat64() - rfMonthly
		excess = append(excess, x)
		sum += x
	}
	meanExcess := sum / float64(len(excess))

	var varianceSum float64
	for _, x := range excess {
		diff := x - meanExcess
		varianceSum += diff * diff
	}
	stdMonthly := math.Sqrt(varianceSum / float64(len(excess)-1))
	if stdMonthly == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(meanExcess / stdMonthly * math.Sqrt(12.0))
}

// getMonthlyReturns returns the returns between consecutive month-end
// equities of chronologically sorted snapshots.
func getMonthlyReturns(snapshots []EquitySnapshot) []decimal.Decimal {
	var monthEnds []decimal.Decimal
	for i, snap := range snapshots {
		last := i == len(snapshots)-1
		if !last {
			ny, nm, _ := snapshots[i+1].Time.Date()
			y, m, _ := snap.Time.Date()
			last = ny != y || nm != m
		}
		if last {
			monthEnds = append(monthEnds, snap.Equity)
		}
	}
	if len(monthEnds) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(monthEnds)-1)
	prev := monthEnds[0]
	for _, curr := range monthEnds[1:] {
		if prev.IsPositive() {
			returns = append(returns, curr.Div(prev).Sub(decimal.NewFromInt(1)))
		}
		prev = curr
	}
	return returns
}
