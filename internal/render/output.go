package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Banner is printed the first time torch sets up a workspace.
const Banner = `  __                  __
 / /_____  __________/ /_
/ __/ __ \/ ___/ ___/ __ \
/ /_/ /_/ / /  / /__/ / / /
\__/\____/_/   \___/_/ /_/`

// Welcome returns the colored first-run banner.
func Welcome() string {
	lines := strings.Split(Banner, "\n")
	palette := []func(format string, a ...interface{}) string{
		color.RedString, color.RedString, color.MagentaString, color.MagentaString, color.BlueString,
	}
	var sb strings.Builder
	for i, line := range lines {
		sb.WriteString(palette[i%len(palette)]("%s", line))
		sb.WriteString("\n")
	}
	return sb.String()
}

// TooLarge formats the message shown when the workspace exceeds the file
// ceiling.
func TooLarge(count, max int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Workspace too large (%d/%d files). ", count, max)
	sb.WriteString("Please consider narrowing your workspace by using\n\n")
	fmt.Fprintf(&sb, "  $ `%s %s`\n\n", color.GreenString("torch"), color.New(color.Underline).Sprint("./more/specific/folder"))
	sb.WriteString("Otherwise, consider adding some folders to your `.gitignore` file.\n")
	return sb.String()
}

// Learned formats the scheduler summary line.
func Learned(n int) string {
	if n == 1 {
		return "Learned 1 new file."
	}
	return fmt.Sprintf("Learned %d new files.", n)
}
