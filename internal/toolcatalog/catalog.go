// Package toolcatalog holds the static routing and classification tables for
// the design-model tools agents may invoke.
//
// Every known tool routes to exactly one target server. Tools are split into
// three disjoint sets: mutating (classified create, modify or export by name
// prefix), destructive and read-only.
package toolcatalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/designgov/internal/session"
)

// Target servers.
const (
	ServerGeometry      = "geometry"
	ServerSpatial       = "spatial"
	ServerValidation    = "validation"
	ServerDocumentation = "documentation"
)

// MergeTool merges a design branch into its parent.
const MergeTool = "merge_branch"

// ErrUnknownTool is returned for tool names absent from the routing table.
var ErrUnknownTool = errors.New("unknown tool")

var routes = map[string]string{
	// geometry
	"create_wall":    ServerGeometry,
	"create_door":    ServerGeometry,
	"create_window":  ServerGeometry,
	"create_slab":    ServerGeometry,
	"create_column":  ServerGeometry,
	"create_beam":    ServerGeometry,
	"create_roof":    ServerGeometry,
	"create_stair":   ServerGeometry,
	"create_level":   ServerGeometry,
	"modify_wall":    ServerGeometry,
	"move_element":   ServerGeometry,
	"rotate_element": ServerGeometry,
	"copy_element":   ServerGeometry,
	"set_property":   ServerGeometry,
	"delete_element": ServerGeometry,
	"delete_level":   ServerGeometry,
	"get_element":    ServerGeometry,
	"list_elements":  ServerGeometry,
	MergeTool:        ServerGeometry,

	// spatial
	"create_room":         ServerSpatial,
	"create_zone":         ServerSpatial,
	"delete_room":         ServerSpatial,
	"get_room_boundaries": ServerSpatial,
	"query_spatial":       ServerSpatial,
	"calculate_area":      ServerSpatial,

	// validation
	"detect_clashes":        ServerValidation,
	"validate_model":        ServerValidation,
	"check_code_compliance": ServerValidation,
	"validate_egress":       ServerValidation,

	// documentation
	"export_ifc":        ServerDocumentation,
	"export_pdf":        ServerDocumentation,
	"export_schedule":   ServerDocumentation,
	"create_sheet":      ServerDocumentation,
	"generate_schedule": ServerDocumentation,
}

var mutating = setOf(
	"create_wall", "create_door", "create_window", "create_slab", "create_column",
	"create_beam", "create_roof", "create_stair", "create_level", "create_room",
	"create_zone", "create_sheet",
	"modify_wall", "move_element", "rotate_element", "copy_element", "set_property",
	"generate_schedule", MergeTool,
	"export_ifc", "export_pdf", "export_schedule",
)

var destructive = setOf("delete_element", "delete_level", "delete_room")

var readOnly = setOf(
	"get_element", "list_elements", "get_room_boundaries", "query_spatial",
	"calculate_area", "detect_clashes", "validate_model", "check_code_compliance",
	"validate_egress",
)

// validationPrefixes mark read-only tools that are checks rather than queries.
var validationPrefixes = []string{"validate_", "detect_", "check_"}

// categories maps tools to the element category they act on when the
// action parameters do not name one.
var categories = map[string]string{
	"create_wall":   "wall",
	"modify_wall":   "wall",
	"create_door":   "door",
	"create_window": "window",
	"create_slab":   "slab",
	"create_column": "column",
	"create_beam":   "beam",
	"create_roof":   "roof",
	"create_stair":  "stair",
	"create_level":  "level",
	"delete_level":  "level",
	"create_room":   "room",
	"delete_room":   "room",
	"create_zone":   "zone",
	"create_sheet":  "sheet",
}

// requiredParams lists the structurally required parameters of tools that
// create or reshape geometry. An action missing any of them would force the
// tool to invent geometry.
var requiredParams = map[string][]string{
	"create_wall":    {"start", "end", "height", "thickness"},
	"create_door":    {"wall_id", "position", "width", "height"},
	"create_window":  {"wall_id", "position", "width", "height"},
	"create_slab":    {"boundary", "thickness"},
	"create_column":  {"location", "height", "profile"},
	"create_beam":    {"start", "end", "profile"},
	"create_roof":    {"boundary", "slope"},
	"create_stair":   {"start", "end", "width"},
	"create_level":   {"name", "elevation"},
	"create_room":    {"boundary", "name"},
	"create_zone":    {"rooms", "name"},
	"modify_wall":    {"element_id"},
	"move_element":   {"element_id", "displacement"},
	"rotate_element": {"element_id", "angle", "center"},
	"copy_element":   {"element_id", "displacement"},
	"set_property":   {"element_id", "property", "value"},
}

func setOf(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// Route returns the target server for tool.
func Route(tool string) (string, error) {
	server, ok := routes[tool]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
	return server, nil
}

// Classify returns the operation kind of tool. Unknown tools are an error.
func Classify(tool string) (session.OperationKind, error) {
	switch {
	case IsDestructive(tool):
		return session.OperationDelete, nil
	case IsReadOnly(tool):
		for _, p := range validationPrefixes {
			if strings.HasPrefix(tool, p) {
				return session.OperationValidate, nil
			}
		}
		return session.OperationRead, nil
	case IsMutating(tool):
		switch {
		case strings.HasPrefix(tool, "create_"):
			return session.OperationCreate, nil
		case strings.HasPrefix(tool, "export_"):
			return session.OperationExport, nil
		default:
			return session.OperationModify, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, tool)
}

// IsDestructive reports whether tool deletes model content.
func IsDestructive(tool string) bool {
	_, ok := destructive[tool]
	return ok
}

// IsReadOnly reports whether tool never mutates the model.
func IsReadOnly(tool string) bool {
	_, ok := readOnly[tool]
	return ok
}

// IsMutating reports whether tool is in the non-destructive mutating set.
func IsMutating(tool string) bool {
	_, ok := mutating[tool]
	return ok
}

// IsMerge reports whether tool merges branches.
func IsMerge(tool string) bool {
	return tool == MergeTool
}

// Category returns the element category tool acts on, or "".
func Category(tool string) string {
	return categories[tool]
}

// RequiredParams returns the structurally required parameters of tool.
func RequiredParams(tool string) []string {
	return append([]string(nil), requiredParams[tool]...)
}

// Entry is one row of the catalog.
type Entry struct {
	Tool        string                `json:"tool"`
	Server      string                `json:"server"`
	Operation   session.OperationKind `json:"operation"`
	Destructive bool                  `json:"destructive"`
}

// Entries returns the full catalog sorted by server then tool.
func Entries() []Entry {
	out := make([]Entry, 0, len(routes))
	for tool, server := range routes {
		op, err := Classify(tool)
		if err != nil {
			continue
		}
		out = append(out, Entry{Tool: tool, Server: server, Operation: op, Destructive: IsDestructive(tool)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].Tool < out[j].Tool
	})
	return out
}
