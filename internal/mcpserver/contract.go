package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/gtmkit/internal/markers"
	"github.com/starford/gtmkit/internal/schema"
)

// markerFormat describes the marker protocol LLM consumers must keep intact
// when editing a plan.
const markerFormat = `# GTM Plan Marker Contract

Every plan under ` + "`<project>/plans/<step>.md`" + ` is generated from
` + "`<project>/json_output/<step>.json`" + ` and synced back after edits. Each
field lives in its own section whose header carries a field marker.

## Structure

` + "```" + `markdown
<!-- gtm-sync
generated_at: 2026-10-18T09:30:00Z
source: overview.json
-->

# Company Overview

## Company Description {#description}

A widget maker.

## Key Capabilities {#capabilities}

- Cutting: fast
- Shipping: same-day
` + "```" + `

## Rules

1. **Never edit or remove a ` + "`{#field}`" + ` marker.** A section without its
   marker is not synced back; required fields are then reported as orphaned
   and dropped from the JSON.
2. **Header text is free.** Rename "Key Capabilities" as you like, the marker
   alone identifies the field.
3. **A section ends at the next header of any level.** Do not add sub-headers
   inside a field.
4. **Lists** are bullet items (` + "`- item`" + `). Indented lines continue the
   previous item.
5. **Records** are a bold title with an optional qualifier in parentheses,
   a description, then ` + "`*Label: value*`" + ` lines:

` + "```" + `markdown
**Hiring RevOps (high)**
Job posts for revenue operations roles.
*Detection: job board alerts*
` + "```" + `

6. **Each marker appears once.** When a marker is repeated only the last
   section is used.
7. Leave the ` + "`gtm-sync`" + ` comment alone; it is informational.
`

// MarkerContract returns the marker protocol followed by the fields of every
// step in s.
func MarkerContract(s *schema.Schema) string {
	var b strings.Builder
	b.WriteString(markerFormat)
	b.WriteString("\n## Steps\n")
	for _, name := range s.Steps() {
		st, _ := s.Step(name)
		fmt.Fprintf(&b, "\n### %s (`%s`)\n\n", st.Title, st.Name)
		if st.Description != "" {
			b.WriteString(st.Description + "\n\n")
		}
		for _, f := range st.Fields {
			req := "required"
			if f.Optional {
				req = "optional"
			}
			fmt.Fprintf(&b, "- `%s` %s, %s\n", markers.Tag(f.Name), f.Shape, req)
		}
	}
	return b.String()
}
