package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"price-tracker/models"
	"price-tracker/utils"
)

const reportWidth = 72

// ReportBuilder renders run statistics into the plain-text report artifact.
type ReportBuilder struct {
	dir     string
	logger  *utils.Logger
	printer *message.Printer
	now     func() time.Time
}

// NewReportBuilder writes reports into dir.
func NewReportBuilder(dir string, logger *utils.Logger) *ReportBuilder {
	return &ReportBuilder{
		dir:     dir,
		logger:  logger,
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}
}

// Build aggregates per-store stats of a run that took total.
func (b *ReportBuilder) Build(stats []models.StoreStats, total time.Duration) *models.RunReport {
	return &models.RunReport{
		StartedAt:     b.now().Add(-total),
		Stores:        append([]models.StoreStats(nil), stats...),
		TotalDuration: total,
	}
}

// Render formats r as a fixed-width summary table followed by a per-store
// breakdown.
func (b *ReportBuilder) Render(r *models.RunReport) string {
	sep := strings.Repeat("=", reportWidth)
	thin := strings.Repeat("-", reportWidth)
	row := "%-28s %12s %10s %18s\n"

	var sb strings.Builder
	sb.WriteString(sep + "\n")
	sb.WriteString("PRICE SCRAPE REPORT\n")
	if r.RunID != "" {
		fmt.Fprintf(&sb, "Run ID:   %s\n", r.RunID)
	}
	fmt.Fprintf(&sb, "Started:  %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(r.TotalDuration))
	sb.WriteString(sep + "\n\n")

	fmt.Fprintf(&sb, row, "Store", "Products", "Errors", "Duration")
	sb.WriteString(thin + "\n")
	for _, s := range r.Stores {
		fmt.Fprintf(&sb, row, truncate(s.Name, 28), b.count(s.Products), b.count(s.Errors), formatDuration(s.Duration))
	}
	sb.WriteString(thin + "\n")
	fmt.Fprintf(&sb, row, "TOTAL", b.count(r.TotalProducts()), b.count(r.TotalErrors()), formatDuration(r.TotalDuration))

	sb.WriteString("\nDETAILS\n")
	sb.WriteString(thin + "\n")
	for _, s := range r.Stores {
		sb.WriteString(s.Name + "\n")
		fmt.Fprintf(&sb, "  Products scraped: %s\n", b.count(s.Products))
		fmt.Fprintf(&sb, "  Errors:           %s\n", b.count(s.Errors))
		fmt.Fprintf(&sb, "  Duration:         %s\n", formatDuration(s.Duration))
		fmt.Fprintf(&sb, "  Avg per product:  %s\n", averagePerProduct(s))
		if s.Aborted {
			sb.WriteString("  Status:           aborted\n")
		}
		sb.WriteString("\n")
	}

	if r.Cleaned > 0 {
		fmt.Fprintf(&sb, "Products without price history removed: %s\n", b.count(r.Cleaned))
	}
	sb.WriteString(sep + "\n")
	return sb.String()
}

// Write persists the rendered report as scrape_report_<timestamp>.txt and
// records the path on r.
func (b *ReportBuilder) Write(r *models.RunReport) (string, error) {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return "", fmt.Errorf("report: create dir: %w", err)
	}

	name := fmt.Sprintf("scrape_report_%s.txt", b.now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(b.dir, name)
	if err := os.WriteFile(path, []byte(b.Render(r)), 0644); err != nil {
		return "", fmt.Errorf("report: write %q: %w", path, err)
	}

	r.Path = path
	b.logger.Info("Report saved to %s", path)
	return path, nil
}

// Print writes the rendered report to w.
func (b *ReportBuilder) Print(w io.Writer, r *models.RunReport) {
	fmt.Fprint(w, "\n"+b.Render(r)+"\n")
}

func (b *ReportBuilder) count(n any) string {
	return b.printer.Sprintf("%d", n)
}

func averagePerProduct(s models.StoreStats) string {
	if s.Products == 0 {
		return "n/a"
	}
	avg := decimal.NewFromFloat(s.Duration.Seconds()).Div(decimal.NewFromInt(int64(s.Products)))
	return avg.StringFixed(3) + "s"
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
