package plan

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxSleepSeconds bounds #SLEEP durations to a sane upper limit so a typo
// in a plan file can't stall a worker for an unbounded amount of time.
const maxSleepSeconds = 3600

// Parse reads a pabot argument/plan file and returns the ordered Items it
// describes. Recognized grammar, one directive per line:
//
//	--suite NAME
//	--test NAME [#DEPENDS dep1,dep2]
//	#WAIT
//	#SLEEP n
//	{                 (open a sequential group; members share one worker)
//	}                 (close the current group)
//
// Blank lines and lines beginning with # that aren't a recognized directive
// are ignored, matching the source argument file's tolerance for comments.
func Parse(r io.Reader) (*Plan, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	p := &Plan{}
	var groupID string
	var groupCounter int
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if line == "" {
			continue
		}

		switch {
		case line == "{":
			if groupID != "" {
				return nil, &PlanError{Line: lineNo, Message: "nested groups are not supported"}
			}
			groupCounter++
			groupID = "group-" + strconv.Itoa(groupCounter)
			continue

		case line == "}":
			if groupID == "" {
				return nil, &PlanError{Line: lineNo, Message: "unmatched closing brace"}
			}
			groupID = ""
			continue

		case line == "#WAIT":
			p.Items = append(p.Items, Item{Kind: ItemWaitBarrier})
			continue

		case strings.HasPrefix(line, "#SLEEP"):
			fields := strings.Fields(line)
			if len(fields) != 2 {
				return nil, &PlanError{Line: lineNo, Message: "#SLEEP requires exactly one numeric argument"}
			}
			seconds, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, &PlanError{Line: lineNo, Message: "invalid #SLEEP duration: " + fields[1]}
			}
			if seconds < 0 || seconds > maxSleepSeconds {
				return nil, &PlanError{Line: lineNo, Message: fmt.Sprintf("#SLEEP duration %g out of range [0, %g]", seconds, float64(maxSleepSeconds))}
			}
			p.Items = append(p.Items, Item{Kind: ItemSleepHint, SleepSeconds: seconds})
			continue

		case strings.HasPrefix(line, "--suite ") || strings.HasPrefix(line, "--test "):
			item, err := parseUnitLine(line, lineNo)
			if err != nil {
				return nil, err
			}
			item.GroupID = groupID
			p.Items = append(p.Items, item)
			continue

		case strings.HasPrefix(line, "#"):
			// unrecognized comment, ignored
			continue

		default:
			return nil, &PlanError{Line: lineNo, Message: "unrecognized directive: " + line}
		}
	}

	if groupID != "" {
		return nil, &PlanError{Line: lineNo, Message: "unclosed group at end of file"}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return p, nil
}

func parseUnitLine(line string, lineNo int) (Item, error) {
	flagEnd := strings.IndexByte(line, ' ')
	flag := line[:flagEnd]
	rest := strings.TrimSpace(line[flagEnd+1:])

	name := rest
	var deps []string
	if idx := strings.Index(rest, "#DEPENDS"); idx >= 0 {
		name = strings.TrimSpace(rest[:idx])
		depStr := strings.TrimSpace(rest[idx+len("#DEPENDS"):])
		for _, d := range strings.Split(depStr, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				deps = append(deps, d)
			}
		}
	}
	if name == "" {
		return Item{}, &PlanError{Line: lineNo, Message: flag + " requires a name"}
	}

	return Item{Kind: ItemUnit, Flag: flag, Name: name, DependsOn: deps}, nil
}
