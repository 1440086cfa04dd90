// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"fmt"
	"strings"
)

// ReportEntry describes one processor of a created processing.
type ReportEntry struct {
	Processor string

	// Defines lists the fields declared as defined by the processor.
	Defines []string

	// Unavailable lists optional fields which are neither provided nor
	// defined by any earlier processor.
	Unavailable []string
}

// Report is the human readable outcome of [Assembly.Create].
type Report struct {
	Assembly string
	Provided []string
	Entries  []ReportEntry
}

// String implements the [fmt.Stringer] interface.
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "assembly %q with %d processor(s)\n", r.Assembly, len(r.Entries))
	if len(r.Provided) > 0 {
		fmt.Fprintf(&sb, "  provided: %s\n", strings.Join(r.Provided, ", "))
	}
	for i, e := range r.Entries {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e.Processor)
		if len(e.Defines) > 0 {
			fmt.Fprintf(&sb, "     defines: %s\n", strings.Join(e.Defines, ", "))
		}
		if len(e.Unavailable) > 0 {
			fmt.Fprintf(&sb, "     unavailable optional: %s\n", strings.Join(e.Unavailable, ", "))
		}
	}
	return sb.String()
}
