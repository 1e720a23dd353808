package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders a Plan back into the text grammar Parse accepts. Used by
// tests asserting round-trip fidelity; --dryrun prints its own entry list
// and does not call it.
func Format(p *Plan) string {
	var b strings.Builder
	openGroup := ""

	for _, item := range p.Items {
		if item.GroupID != openGroup {
			if openGroup != "" {
				b.WriteString("}\n")
			}
			if item.GroupID != "" {
				b.WriteString("{\n")
			}
			openGroup = item.GroupID
		}

		switch item.Kind {
		case ItemUnit:
			fmt.Fprintf(&b, "%s %s", item.Flag, item.Name)
			if len(item.DependsOn) > 0 {
				fmt.Fprintf(&b, " #DEPENDS %s", strings.Join(item.DependsOn, ","))
			}
			b.WriteString("\n")
		case ItemWaitBarrier:
			b.WriteString("#WAIT\n")
		case ItemSleepHint:
			fmt.Fprintf(&b, "#SLEEP %s\n", strconv.FormatFloat(item.SleepSeconds, 'g', -1, 64))
		}
	}

	if openGroup != "" {
		b.WriteString("}\n")
	}

	return b.String()
}
