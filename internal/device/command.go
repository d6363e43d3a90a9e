package device

import (
	"fmt"
	"strings"
)

// Command is one control request.
type Command interface {
	// Name is the short label used in logs and metrics.
	Name() string
	// Lines renders the request lines sent to the device.
	Lines() []string
	// Multiline reports whether the response is a "!" block ended by ".".
	Multiline() bool
}

// Get reads a single field value.
type Get struct {
	Field string
}

func (Get) Name() string { return "get" }
func (c Get) Lines() []string { return []string{c.Field + "?"} }
func (Get) Multiline() bool { return false }
func (c Get) String() string { return fmt.Sprintf("Get(%s)", c.Field) }

// GetMultiline reads a field whose value spans several lines, such as a
// table.
type GetMultiline struct {
	Field string
}

func (GetMultiline) Name() string { return "get_multiline" }
func (c GetMultiline) Lines() []string { return []string{c.Field + "?"} }
func (GetMultiline) Multiline() bool { return true }
func (c GetMultiline) String() string { return fmt.Sprintf("GetMultiline(%s)", c.Field) }

// Put writes a single field value.
type Put struct {
	Field string
	Value string
}

func (Put) Name() string { return "put" }
func (c Put) Lines() []string { return []string{c.Field + "=" + c.Value} }
func (Put) Multiline() bool { return false }
func (c Put) String() string { return fmt.Sprintf("Put(%s=%s)", c.Field, c.Value) }

// PutTable replaces a table with the given words. The request is the field
// name followed by "<", one word per line and a blank terminator.
type PutTable struct {
	Field string
	Words []string
}

func (PutTable) Name() string { return "put_table" }

func (c PutTable) Lines() []string {
	out := make([]string, 0, len(c.Words)+2)
	out = append(out, c.Field+"<")
	out = append(out, c.Words...)
	return append(out, "")
}

func (PutTable) Multiline() bool { return false }
func (c PutTable) String() string { return fmt.Sprintf("PutTable(%s, %d words)", c.Field, len(c.Words)) }

// Arm starts an acquisition.
type Arm struct{}

func (Arm) Name() string { return "arm" }
func (Arm) Lines() []string { return []string{"*PCAP.ARM="} }
func (Arm) Multiline() bool { return false }

// Disarm stops an acquisition.
type Disarm struct{}

func (Disarm) Name() string { return "disarm" }
func (Disarm) Lines() []string { return []string{"*PCAP.DISARM="} }
func (Disarm) Multiline() bool { return false }

// GetChanges lists fields changed since the previous call for one change
// group, e.g. "TABLE" or "ATTR".
type GetChanges struct {
	Group string
}

func (GetChanges) Name() string { return "get_changes" }

func (c GetChanges) Lines() []string {
	group := strings.ToUpper(strings.TrimSpace(c.Group))
	if group == "" {
		return []string{"*CHANGES?"}
	}
	return []string{"*CHANGES." + group + "?"}
}

func (GetChanges) Multiline() bool { return true }

// ParseChanges splits "FIELD=value" change lines into a map. Table changes
// are reported as "FIELD<" and map to an empty value; errored fields are
// reported as "FIELD (error)".
func ParseChanges(lines []string) (changed map[string]string, inError []string) {
	changed = make(map[string]string, len(lines))
	for _, line := range lines {
		switch {
		case strings.HasSuffix(line, " (error)"):
			inError = append(inError, strings.TrimSuffix(line, " (error)"))
		case strings.HasSuffix(line, "<"):
			changed[strings.TrimSuffix(line, "<")] = ""
		default:
			field, value, _ := strings.Cut(line, "=")
			changed[field] = value
		}
	}
	return changed, inError
}
