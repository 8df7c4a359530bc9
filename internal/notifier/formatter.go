package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"ZoneSentinel/internal/engine"
	"ZoneSentinel/internal/model"
	"ZoneSentinel/internal/recorder"
)

// FormatRunSummary formats a finished backtest into a Telegram message.
func FormatRunSummary(res *engine.Result) string {
	var b strings.Builder
	st := res.Stats

	b.WriteString(fmt.Sprintf("📊 <b>ZoneSentinel 回测</b> | %s %s\n", html.EscapeString(res.Symbol), res.Driver))
	b.WriteString(fmt.Sprintf("运行: <code>%s</code>\n", shortID(res.RunID)))
	if n := len(res.Equity); n > 0 {
		b.WriteString(fmt.Sprintf("区间: %s ~ %s\n\n",
			res.Equity[0].Time.Format("2006-01-02"), res.Equity[n-1].Time.Format("2006-01-02")))
	} else {
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("区域: %d | 信号: %d | 拒绝: %d\n", st.ZonesFound, st.Signals, st.Rejections))
	b.WriteString(fmt.Sprintf("交易: %d (胜 %d / 负 %d, 胜率 %.1f%%)\n", st.Trades, st.Wins, st.Losses, st.WinRate*100))
	if st.ProfitFactor > 0 {
		b.WriteString(fmt.Sprintf("盈亏比: %.2f\n", st.ProfitFactor))
	}
	b.WriteString(fmt.Sprintf("净收益: %+.2f (%+.2f%%)\n", st.NetProfit, st.ReturnPct))
	b.WriteString(fmt.Sprintf("最大回撤: %.2f%%\n", st.MaxDrawdown*100))
	b.WriteString(fmt.Sprintf("期末余额: %s\n", res.FinalBalance.StringFixed(2)))

	if counts := exitCounts(res.Ledger); len(counts) > 0 {
		b.WriteString("\n🧾 <b>出场统计:</b>\n")
		for _, c := range counts {
			b.WriteString(fmt.Sprintf("  %s: %d\n", c.reason, c.n))
		}
	}
	return b.String()
}

type exitCount struct {
	reason model.ExitReason
	n      int
}

func exitCounts(ledger []model.ClosedTrade) []exitCount {
	m := make(map[model.ExitReason]int)
	for _, ct := range ledger {
		m[ct.ExitReason]++
	}
	out := make([]exitCount, 0, len(m))
	for r, n := range m {
		out = append(out, exitCount{r, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].reason < out[j].reason })
	return out
}

// FormatRecentRuns lists persisted runs, newest first.
func FormatRecentRuns(runs []recorder.RunSummary) string {
	if len(runs) == 0 {
		return "暂无回测记录"
	}
	var b strings.Builder
	b.WriteString("📦 <b>最近回测</b>\n\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("<code>%s</code> %s %s | %s\n",
			shortID(r.RunID), html.EscapeString(r.Symbol), r.Driver, r.StartedAt.Format("2006-01-02 15:04")))
		b.WriteString(fmt.Sprintf("  交易 %d, 胜率 %.1f%%, 净收益 %+.2f, 回撤 %.2f%%, 余额 %s\n",
			r.Trades, r.WinRate*100, r.NetProfit, r.MaxDrawdown*100, r.FinalBalance))
	}
	return b.String()
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "可用命令:\n/run 立即回测\n/runs 最近回测\n/help 帮助"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
