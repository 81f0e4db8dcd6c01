package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-scripts/siteextract/pkg/common"
)

const (
	maxListedLinks = 5
	labelWidth     = 14
)

// SummaryPanel renders the outcome of one crawl for the terminal.
type SummaryPanel struct {
	result  *common.CrawlResult
	elapsed time.Duration
	failed  int
	width   int
}

func NewSummaryPanel(result *common.CrawlResult) *SummaryPanel {
	return &SummaryPanel{result: result, width: 80}
}

func (s *SummaryPanel) SetWidth(width int) {
	s.width = width
}

// SetStats adds run statistics that are not part of the result.
func (s *SummaryPanel) SetStats(elapsed time.Duration, failedPages int) {
	s.elapsed = elapsed
	s.failed = failedPages
}

func (s *SummaryPanel) View() string {
	res := s.result
	style := borderStyle.Copy().BorderForeground(lipgloss.Color("35"))
	if !res.Success {
		style = borderStyle.Copy().BorderForeground(lipgloss.Color("196"))
	}

	stats := []struct {
		label string
		value string
	}{
		{"URL", res.URL},
		{"Query", res.Query},
		{"Status", s.status()},
		{"Pages", fmt.Sprintf("%d", res.TotalPages)},
		{"Links Found", fmt.Sprintf("%d", len(res.Links))},
	}
	if res.ExtractedData != nil {
		stats = append(stats,
			struct{ label, value string }{"Data Type", res.ExtractedData.DataType},
			struct{ label, value string }{"Items", fmt.Sprintf("%d", len(res.ExtractedData.Items))},
		)
	}
	if s.failed > 0 {
		stats = append(stats, struct{ label, value string }{"Failed Pages", fmt.Sprintf("%d", s.failed)})
	}
	if s.elapsed > 0 {
		stats = append(stats, struct{ label, value string }{"Elapsed Time", formatElapsed(s.elapsed)})
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("Crawl Summary") + "\n\n")
	for _, stat := range stats {
		content.WriteString(statLine(stat.label, stat.value) + "\n")
	}

	content.WriteString("\n")
	if res.Success {
		content.WriteString(infoStyle.Render(res.Summary))
	} else {
		content.WriteString(errorStyle.Render(res.Error))
	}

	if res.FallbackUsed {
		content.WriteString("\n" + warningStyle.Render("Headless rendering unavailable; plain fetch was used."))
	}

	if len(res.Links) > 0 {
		content.WriteString("\n\nLinks:\n")
		for i, link := range res.Links {
			if i == maxListedLinks {
				content.WriteString(infoStyle.Render(fmt.Sprintf("• ... %d more", len(res.Links)-maxListedLinks)) + "\n")
				break
			}
			content.WriteString(infoStyle.Render("• "+link) + "\n")
		}
	}

	return style.Width(s.width).Render(strings.TrimRight(content.String(), "\n"))
}

// statLine pads the label inside the style so colour codes do not eat
// into the column width.
func statLine(label, value string) string {
	return labelStyle.Width(labelWidth).Render(label+":") + " " + valueStyle.Render(value)
}

func (s *SummaryPanel) status() string {
	if s.result.Success {
		return "success"
	}
	return "failed"
}

func formatElapsed(elapsed time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d",
		int(elapsed.Hours()),
		int(elapsed.Minutes())%60,
		int(elapsed.Seconds())%60,
	)
}
