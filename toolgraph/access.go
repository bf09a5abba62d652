package toolgraph

import (
	"sync"

	"github.com/tidwall/gjson"
)

// AccessMode is how a tool touches its declared resource.
type AccessMode string

const (
	ModeRead    AccessMode = "read"
	ModeWrite   AccessMode = "write"
	ModeExecute AccessMode = "execute"
)

// ResourceAccess is the resolved access footprint of one tool call: a
// resource type, the concrete scope identifiers extracted from the call's
// arguments, and the access mode.
type ResourceAccess struct {
	Type  string     `json:"type"`
	Scope []string   `json:"scope,omitempty"`
	Mode  AccessMode `json:"mode"`
}

// ConflictsWith reports whether two accesses may not run concurrently.
// Execute-mode conflicts with everything. Two reads never conflict.
// Otherwise the accesses conflict when they name the same resource type,
// their scopes intersect, and at least one is a write.
func (ra ResourceAccess) ConflictsWith(other ResourceAccess) bool {
	if ra.Mode == ModeExecute || other.Mode == ModeExecute {
		return true
	}
	if ra.Mode == ModeRead && other.Mode == ModeRead {
		return false
	}
	if ra.Type != other.Type {
		return false
	}
	return scopesIntersect(ra.Scope, other.Scope)
}

func scopesIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

// Declaration is the static resource metadata registered for a tool.
// ScopeKeys are gjson paths into the call's JSON arguments; each resolved
// value (or array element) contributes one scope identifier.
type Declaration struct {
	Resource  string     `json:"resource"`
	Mode      AccessMode `json:"mode"`
	ScopeKeys []string   `json:"scope_keys,omitempty"`
}

// AccessTable maps tool names to resource declarations. Unregistered tools
// resolve to the most conservative access: execute-mode on an unknown
// resource.
type AccessTable struct {
	decls map[string]Declaration
	mu    sync.RWMutex
}

// NewAccessTable creates an empty AccessTable.
func NewAccessTable() *AccessTable {
	return &AccessTable{decls: make(map[string]Declaration)}
}

// Register adds or replaces the declaration for a tool.
func (t *AccessTable) Register(toolName string, decl Declaration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decls[toolName] = decl
}

// Declared reports whether a tool has a registered declaration.
func (t *AccessTable) Declared(toolName string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.decls[toolName]
	return ok
}

// Resolve derives the ResourceAccess for one call from the tool's
// declaration and its raw JSON arguments. A declared non-read tool whose
// scope cannot be extracted (missing keys, malformed arguments) escalates
// to execute-mode: an ambiguous footprint is treated as a full conflict.
func (t *AccessTable) Resolve(toolName string, rawArgs string) ResourceAccess {
	t.mu.RLock()
	decl, ok := t.decls[toolName]
	t.mu.RUnlock()

	if !ok {
		return ResourceAccess{Type: "unknown", Mode: ModeExecute}
	}
	if decl.Mode == ModeExecute {
		return ResourceAccess{Type: decl.Resource, Mode: ModeExecute}
	}

	var scope []string
	for _, key := range decl.ScopeKeys {
		res := gjson.Get(rawArgs, key)
		switch {
		case res.IsArray():
			for _, elem := range res.Array() {
				if s := elem.String(); s != "" {
					scope = append(scope, s)
				}
			}
		case res.Exists():
			if s := res.String(); s != "" {
				scope = append(scope, s)
			}
		}
	}

	if len(decl.ScopeKeys) > 0 && len(scope) == 0 && decl.Mode != ModeRead {
		return ResourceAccess{Type: decl.Resource, Mode: ModeExecute}
	}

	return ResourceAccess{Type: decl.Resource, Scope: scope, Mode: decl.Mode}
}
