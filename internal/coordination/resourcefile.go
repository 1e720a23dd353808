package coordination

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ResourceSection is one [name] block of a resource file: its raw
// key/value pairs, "tags" included, before splitTagsAndValues splits the
// tag list out of the rest of the values.
type ResourceSection struct {
	Name   string
	Values map[string]string
}

// ResourceFile is the parsed form of a --resourcefile: an ordered sequence
// of sections, one per ValueSet. Section names may repeat; each occurrence
// still becomes its own distinct ValueSet sharing that name.
//
// No INI-parsing library appears anywhere in the example pack, so this is
// hand-rolled against the stdlib rather than an ecosystem dependency -
// the format itself (bracketed sections, key=value lines, '#' comments)
// is simple enough that pulling in a dependency for it would be the
// opposite of idiomatic.
type ResourceFile struct {
	Sections []ResourceSection
}

// ParseResourceFile reads a resource file in the above grammar.
func ParseResourceFile(r io.Reader) (*ResourceFile, error) {
	rf := &ResourceFile{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	var current *ResourceSection

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, fmt.Errorf("resource file line %d: empty section name", lineNo)
			}
			rf.Sections = append(rf.Sections, ResourceSection{Name: name, Values: make(map[string]string)})
			current = &rf.Sections[len(rf.Sections)-1]
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("resource file line %d: key outside of any [section]", lineNo)
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("resource file line %d: expected key=value", lineNo)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		current.Values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return rf, nil
}

// LoadInto defines one ValueSet in registry per section of rf, splitting
// each section's "tags" key into the set's tag list and loading every
// other key/value pair as a leasable value.
func (rf *ResourceFile) LoadInto(registry *Registry) {
	for _, sec := range rf.Sections {
		tags, values := splitTagsAndValues(sec.Values)
		registry.DefineValueSet(sec.Name, tags, values)
	}
}

// splitTagsAndValues pulls the comma-separated "tags" entry (if present,
// matched case-insensitively) out of kv and returns it as a tag slice
// alongside the remaining entries.
func splitTagsAndValues(kv map[string]string) (tags []string, values map[string]string) {
	values = make(map[string]string, len(kv))
	for k, v := range kv {
		if strings.EqualFold(k, "tags") {
			for _, tag := range strings.Split(v, ",") {
				tag = strings.TrimSpace(tag)
				if tag != "" {
					tags = append(tags, tag)
				}
			}
			continue
		}
		values[k] = v
	}
	return tags, values
}
