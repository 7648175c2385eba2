package collection

import "strings"

// invalidPathChars are replaced by '_' in path components.
const invalidPathChars = `<>:"/\|?*`

// Sanitize makes a group name safe to use as a single path component.
// Each of <>:"/\|?* becomes '_' and leading/trailing dots and spaces are
// removed. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(name string) string {
	out := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidPathChars, r) {
			return '_'
		}
		return r
	}, name)
	return strings.Trim(out, ". ")
}

// EmptyComponent stands in for a group name that sanitizes to nothing.
const EmptyComponent = "_"

// PathComponent is the folder name used for a group: its sanitized name,
// or EmptyComponent when nothing is left, so keys never contain "//".
func PathComponent(name string) string {
	if c := Sanitize(name); c != "" {
		return c
	}
	return EmptyComponent
}

// BuildPathComponents maps every element of groupPath through PathComponent.
// When includeRoot is false and the first element is the root group, it is
// dropped.
func BuildPathComponents(groupPath []string, rootName string, includeRoot bool) []string {
	components := make([]string, 0, len(groupPath))
	for _, name := range groupPath {
		components = append(components, PathComponent(name))
	}
	if !includeRoot && len(components) > 0 && components[0] == PathComponent(rootName) {
		components = components[1:]
	}
	return components
}

// SplitPrefix splits a slash separated prefix such as "replays/rlcs/2024"
// into path components, ignoring empty segments.
func SplitPrefix(prefix string) []string {
	var out []string
	for _, part := range strings.Split(prefix, "/") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Flatten walks the tree in pre-order, emitting a node's own replays before
// descending into its children. Each FlatReplay's GroupPath starts with the
// root name and ends with the name of the node holding the replay.
func Flatten(tree *GroupTree) []FlatReplay {
	if tree == nil {
		return nil
	}
	var out []FlatReplay
	flatten(tree, nil, &out)
	return out
}

func flatten(node *GroupTree, parent []string, out *[]FlatReplay) {
	path := make([]string, len(parent), len(parent)+1)
	copy(path, parent)
	path = append(path, node.Name)

	for _, r := range node.Replays {
		*out = append(*out, FlatReplay{Replay: r, GroupPath: path})
	}
	for _, child := range node.Children {
		flatten(child, path, out)
	}
}
