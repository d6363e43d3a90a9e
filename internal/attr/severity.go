package attr

import (
	"fmt"
	"strings"
)

// Severity is the alarm severity attached to an attribute value.
type Severity int

const (
	NoAlarm Severity = iota
	Minor
	Major
	Invalid
)

var severityNames = []string{"NO_ALARM", "MINOR", "MAJOR", "INVALID"}

func (s Severity) String() string {
	if int(s) < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
	return severityNames[s]
}

// MarshalText renders the severity name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	for i, candidate := range severityNames {
		if candidate == name {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", string(text))
}

// Alarm is the alarm status explaining a severity.
type Alarm int

const (
	AlarmNone Alarm = iota
	AlarmUDF
	AlarmState
	AlarmComm
	AlarmWrite
)

var alarmNames = []string{"NONE", "UDF", "STATE", "COMM", "WRITE"}

func (a Alarm) String() string {
	if int(a) < 0 || int(a) >= len(alarmNames) {
		return fmt.Sprintf("ALARM(%d)", int(a))
	}
	return alarmNames[a]
}

// MarshalText renders the alarm name.
func (a Alarm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses an alarm name.
func (a *Alarm) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	for i, candidate := range alarmNames {
		if candidate == name {
			*a = Alarm(i)
			return nil
		}
	}
	return fmt.Errorf("unknown alarm %q", string(text))
}
