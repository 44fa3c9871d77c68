package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/invoice-sentinel/internal/engine"
	"github.com/Veraticus/invoice-sentinel/internal/model"
)

const dateFormat = "2006-01-02"

// RiskStyle returns the style used to render a risk level.
func RiskStyle(level model.RiskLevel) lipgloss.Style {
	switch level {
	case model.RiskCritical:
		return CriticalStyle
	case model.RiskHigh:
		return ErrorStyle
	case model.RiskMedium:
		return WarningStyle
	default:
		return SuccessStyle
	}
}

// FormatDecision renders a decision with its icon.
func FormatDecision(d model.Decision) string {
	switch d {
	case model.DecisionBlock:
		return CriticalStyle.Render(BlockIcon + " BLOCK")
	case model.DecisionReview:
		return WarningStyle.Render(WarningIcon + " REVIEW")
	default:
		return SuccessStyle.Render(SuccessIcon + " APPROVE")
	}
}

// FormatAssessment renders one assessment as a box: the overall verdict
// followed by one line per detector and any anomalies.
func FormatAssessment(a *model.FraudAssessment) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  score %s  risk %s  data quality %.1f\n",
		FormatDecision(a.Decision),
		BoldStyle.Render(fmt.Sprintf("%.2f", a.OverallScore)),
		RiskStyle(a.RiskLevel).Render(string(a.RiskLevel)),
		a.DataQuality)

	if a.Partial {
		b.WriteString(FormatWarning("Partial assessment: some checks could not run") + "\n")
	}

	b.WriteString("\n")
	for _, f := range a.Findings {
		b.WriteString(formatFinding(f) + "\n")
	}

	if len(a.Anomalies) > 0 {
		b.WriteString("\n" + SubtleStyle.Render("Anomalies:") + "\n")
		for _, anomaly := range a.Anomalies {
			b.WriteString("  " + FormatInfo(anomaly) + "\n")
		}
	}

	return RenderBox("Invoice "+a.InvoiceID, strings.TrimRight(b.String(), "\n"))
}

func formatFinding(f model.Finding) string {
	name := fmt.Sprintf("%-14s", f.Detector)
	switch f.Status {
	case model.StatusTriggered:
		return ErrorStyle.Render(fmt.Sprintf("%s %s %.2f (confidence %.2f)", ErrorIcon, name, f.Score, f.Confidence)) +
			"\n    " + f.Reason
	case model.StatusDegraded:
		return WarningStyle.Render(fmt.Sprintf("%s %s unavailable", WarningIcon, name)) +
			"\n    " + SubtleStyle.Render(f.Degradation)
	default:
		return SubtleStyle.Render(fmt.Sprintf("%s %s %.2f", SuccessIcon, name, f.Score))
	}
}

// FormatSummary renders the totals of a batch run.
func FormatSummary(s *engine.BatchSummary) string {
	if s.Total == 0 {
		return FormatInfo("No invoices to assess")
	}

	lines := []string{
		fmt.Sprintf("%s %d assessed in %s", ChartIcon, s.Total, s.ProcessingTime.Round(time.Millisecond)),
		SuccessStyle.Render(fmt.Sprintf("  approve  %d", s.Decisions[model.DecisionApprove])),
		WarningStyle.Render(fmt.Sprintf("  review   %d", s.Decisions[model.DecisionReview])),
		ErrorStyle.Render(fmt.Sprintf("  block    %d", s.Decisions[model.DecisionBlock])),
	}
	if s.Partial > 0 {
		lines = append(lines, WarningStyle.Render(fmt.Sprintf("  partial  %d", s.Partial)))
	}
	if s.Failed > 0 {
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("  failed   %d", s.Failed)))
	}
	return strings.Join(lines, "\n")
}

// FormatBaselines renders baselines as a table.
func FormatBaselines(baselines []model.VendorBaseline) string {
	if len(baselines) == 0 {
		return FormatInfo("No baselines yet. Approve invoices to build them.")
	}

	rows := make([][]string, 0, len(baselines))
	for _, bl := range baselines {
		rows = append(rows, []string{
			bl.VendorKey,
			bl.Category,
			strconv.Itoa(bl.Count),
			fmt.Sprintf("%.2f", bl.Mean),
			fmt.Sprintf("%.2f", bl.StdDev()),
			strconv.Itoa(bl.VendorTotal),
			formatDate(bl.LastUpdated),
		})
	}

	return newTable("Vendor", "Category", "Count", "Mean", "Std Dev", "Vendor Total", "Updated").
		Rows(rows...).
		Render()
}

// FormatProfile renders what is known about a vendor.
func FormatProfile(p *model.VendorProfile) string {
	yesNo := func(v bool) string {
		if v {
			return SuccessStyle.Render("yes")
		}
		return WarningStyle.Render("no")
	}

	registry := SubtleStyle.Render("not checked")
	if p.RegistryChecked {
		registry = yesNo(p.Registered)
	}

	rows := [][]string{
		{"Key", p.VendorKey},
		{"Name", p.DisplayName},
		{"Source", string(p.Source)},
		{"Invoices", strconv.Itoa(p.TotalInvoiceCount)},
		{"Tax ID", yesNo(p.HasTaxID)},
		{"Address", yesNo(p.HasAddress)},
		{"Registered", registry},
		{"Updated", formatDate(p.LastUpdated)},
	}

	return newTable().Rows(rows...).Render()
}

// FormatProfiles renders one row per vendor.
func FormatProfiles(profiles []model.VendorProfile) string {
	if len(profiles) == 0 {
		return FormatInfo("No vendors yet. Import invoices to get started.")
	}

	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, []string{
			p.VendorKey,
			p.DisplayName,
			strconv.Itoa(p.TotalInvoiceCount),
			checkmark(p.HasTaxID),
			checkmark(p.HasAddress),
			string(p.Source),
		})
	}

	return newTable("Vendor", "Name", "Invoices", "Tax ID", "Address", "Source").
		Rows(rows...).
		Render()
}

func newTable(headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SubtleStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
	if len(headers) > 0 {
		t = t.Headers(headers...)
	}
	return t
}

func checkmark(v bool) string {
	if v {
		return SuccessIcon
	}
	return "-"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateFormat)
}
