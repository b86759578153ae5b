// SPDX-License-Identifier: EPL-2.0

package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseFixedListSplitsLabelValueOnColon covers spec.md §8 Property 4:
// "Label:value" yields one option {label:"Label", value:"value"}, while a
// field with no colon is its own label and value.
func TestParseFixedListSplitsLabelValueOnColon(t *testing.T) {
	got := parseFixedList("Production:prod, Staging:staging, dev")
	require.Equal(t, []DropdownOption{
		{Label: "Production", Value: "prod"},
		{Label: "Staging", Value: "staging"},
		{Label: "dev", Value: "dev"},
	}, got)
}

func TestParseFixedListNewlineSeparated(t *testing.T) {
	got := parseFixedList("a:1\nb:2\n\nc")
	require.Equal(t, []DropdownOption{
		{Label: "a", Value: "1"},
		{Label: "b", Value: "2"},
		{Label: "c", Value: "c"},
	}, got)
}
