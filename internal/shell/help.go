package shell

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

const (
	groupAnnotation = "group"

	groupBreakpoints = "1-breakpoints"
	groupSource      = "2-source"
	groupExecution   = "3-execution"
	groupInspect     = "4-inspect"
	groupOther       = "5-other"

	groupDelimiter = "-"
)

func inGroup(group string) map[string]string {
	return map[string]string{groupAnnotation: group}
}

// helpByGroups renders the sub-commands of cmd grouped by their group
// annotation. Commands without one are listed under "other".
func helpByGroups(cmd *cobra.Command) string {
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		if c.Hidden {
			continue
		}
		group, ok := c.Annotations[groupAnnotation]
		if !ok {
			group = groupOther
		}

		name := c.Name()
		if len(c.Aliases) > 0 {
			name += " (" + strings.Join(c.Aliases, ", ") + ")"
		}
		groups[group] = append(groups[group], fmt.Sprintf("  %-22s %s", name, c.Short))
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		lines := groups[name]
		sort.Strings(lines)

		_, title, _ := strings.Cut(name, groupDelimiter)
		fmt.Fprintf(&b, "[%s]\n", title)
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}
