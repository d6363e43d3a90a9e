package record

import "strings"

// EndReason explains why an acquisition ended. The set is open: values the
// device reports that this package does not know are kept verbatim.
type EndReason string

const (
	EndOK                EndReason = "OK"
	EndEarlyDisconnect   EndReason = "EARLY_DISCONNECT"
	EndDataOverrun       EndReason = "DATA_OVERRUN"
	EndFramingError      EndReason = "FRAMING_ERROR"
	EndDriverDataOverrun EndReason = "DRIVER_DATA_OVERRUN"
	EndDMADataError      EndReason = "DMA_DATA_ERROR"
	EndUnknownException  EndReason = "UNKNOWN_EXCEPTION"
	EndStartMismatch     EndReason = "START_DATA_MISMATCH"
	EndManuallyStopped   EndReason = "MANUALLY_STOPPED"
	EndDisarmed          EndReason = "DISARMED"
)

var knownReasons = map[EndReason]struct{}{
	EndOK:                {},
	EndEarlyDisconnect:   {},
	EndDataOverrun:       {},
	EndFramingError:      {},
	EndDriverDataOverrun: {},
	EndDMADataError:      {},
	EndUnknownException:  {},
	EndStartMismatch:     {},
	EndManuallyStopped:   {},
	EndDisarmed:          {},
}

// ParseEndReason maps a device reason onto a known reason, ignoring case
// and treating spaces as underscores. Unknown values are kept verbatim apart
// from surrounding whitespace; an empty value is OK.
func ParseEndReason(value string) EndReason {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return EndOK
	}
	normalized := EndReason(strings.ReplaceAll(strings.ToUpper(trimmed), " ", "_"))
	if normalized.IsKnown() {
		return normalized
	}
	return EndReason(trimmed)
}

// IsKnown reports whether the reason is one this package names.
func (r EndReason) IsKnown() bool {
	_, ok := knownReasons[r]
	return ok
}

// IsError reports whether the reason indicates a failed acquisition.
func (r EndReason) IsError() bool {
	switch r {
	case EndOK, EndManuallyStopped, EndDisarmed:
		return false
	default:
		return true
	}
}

func (r EndReason) String() string {
	return string(r)
}
