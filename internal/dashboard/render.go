package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"rainfall-dashboard/internal/collection"
	"rainfall-dashboard/internal/mutation"
	"rainfall-dashboard/internal/notify"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	badgeStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	labelStyle   = lipgloss.NewStyle().Faint(true)
	valueStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	editingStyle = cellStyle.Foreground(lipgloss.Color("11"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const barWidth = 30

// Screen is everything one frame of the dashboard shows.
type Screen struct {
	Role     string
	Snapshot collection.Snapshot
	Draft    mutation.Draft
	CanWrite bool
	Busy     bool
	Notices  []notify.Notification
}

// Screen captures the current state of v.
func (v *View) Screen(notices []notify.Notification) Screen {
	role, _ := v.session.CurrentRole()
	return Screen{
		Role:     string(role),
		Snapshot: v.Snapshot(),
		Draft:    v.Draft(),
		CanWrite: v.CanWrite(),
		Busy:     v.Busy(),
		Notices:  notices,
	}
}

// Render writes a terminal rendering of screen to w.
func Render(w io.Writer, screen Screen) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Rainfall Analytics Dashboard"))
	if screen.Role != "" {
		b.WriteString("  " + badgeStyle.Render(strings.ToUpper(screen.Role)))
	}
	b.WriteString("\n\n")

	summary := screen.Snapshot.Analytics
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		stat("Total", summary.Total),
		stat("Average", summary.Average),
		stat("Highest", summary.Highest),
		stat("Lowest", summary.Lowest),
	))
	b.WriteString("\n\n")

	b.WriteString(recordTable(screen))
	b.WriteString("\n")

	if screen.CanWrite {
		mode := "Add"
		if screen.Draft.Editing() {
			mode = "Edit " + screen.Draft.Target.String()
		}
		line := fmt.Sprintf("%s: year=%q amount=%q", mode, screen.Draft.Year, screen.Draft.Amount)
		if screen.Busy {
			line += " (saving...)"
		}
		b.WriteString(labelStyle.Render(line) + "\n")
	}

	for _, n := range screen.Notices {
		if n.Level == notify.LevelError {
			b.WriteString(errorStyle.Render("✗ "+n.Message) + "\n")
		} else {
			b.WriteString(successStyle.Render("✓ "+n.Message) + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func stat(label string, value float64) string {
	return lipgloss.NewStyle().PaddingRight(3).Render(
		labelStyle.Render(label) + "\n" + valueStyle.Render(formatAmount(value)),
	)
}

func recordTable(screen Screen) string {
	records := screen.Snapshot.Records
	if len(records) == 0 {
		return labelStyle.Render("No rainfall data yet.") + "\n"
	}
	highest := 0.0
	for _, record := range records {
		highest = max(highest, record.Amount)
	}
	rows := make([][]string, 0, len(records))
	editingRow := -1
	for i, record := range records {
		if screen.Draft.Target == record.ID {
			editingRow = i
		}
		rows = append(rows, []string{
			record.ID.String(),
			strconv.Itoa(record.Year),
			formatAmount(record.Amount),
			barStyle.Render(bar(record.Amount, highest)),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "Year", "Amount (mm)", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == editingRow:
				return editingStyle
			}
			return cellStyle
		})
	return t.String()
}

func bar(amount, highest float64) string {
	if highest <= 0 {
		return ""
	}
	return strings.Repeat("█", int(amount/highest*barWidth+0.5))
}

func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
