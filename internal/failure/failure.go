// Package failure holds the error kinds a replication run can end with.
package failure

import (
	"fmt"
	"strings"
)

// ConfigurationError reports required settings that are absent. It is raised
// before any network activity.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
	}
	return "invalid configuration: " + e.Reason
}

// ResolutionError reports that an expected pattern was not found in fetched
// content.
type ResolutionError struct {
	What   string
	Source string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("resolve %s from %s", e.What, e.Source)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": not found"
}

func (e *ResolutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConsistencyError reports two sources that are expected to agree but do not.
type ConsistencyError struct {
	Expected string
	Source   string
}

func (e *ConsistencyError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%q not found in %s", e.Expected, e.Source)
}

// TransferError reports a failed fetch, publish or runtime command. Output
// carries the captured diagnostic text when the failure came from an external
// command.
type TransferError struct {
	Op     string
	Target string
	Output string
	Err    error
}

func (e *TransferError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s %s failed", e.Op, e.Target)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
