package calendar

import "fmt"

// ConversionError reports a date that cannot be parsed or mapped between the
// AD and BS calendars.
type ConversionError struct {
	Input  string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("calendar: %q: %s", e.Input, e.Reason)
}
