package file

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// flatten turns nested tables into dotted keys: {"a": {"b": 1}} becomes
// {"a.b": 1}.
func flatten(tree map[string]any) map[string]any {
	flat := make(map[string]any)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if prefix != "" {
				k = prefix + "." + k
			}
			if table, ok := v.(map[string]any); ok {
				walk(k, table)
				continue
			}
			flat[k] = v
		}
	}
	walk("", tree)
	return flat
}

// nest is the inverse of flatten. A key that is both a value and a table
// prefix, such as a = 1 next to a.b = 2, has no TOML form.
func nest(flat map[string]any) (map[string]any, error) {
	root := make(map[string]any)
	for _, key := range slices.Sorted(maps.Keys(flat)) {
		path := strings.Split(key, ".")
		node := root
		for _, part := range path[:len(path)-1] {
			switch child := node[part].(type) {
			case nil:
				table := make(map[string]any)
				node[part] = table
				node = table
			case map[string]any:
				node = child
			default:
				return nil, fmt.Errorf("config key %q conflicts with value at %q", key, part)
			}
		}
		leaf := path[len(path)-1]
		if _, isTable := node[leaf].(map[string]any); isTable {
			return nil, fmt.Errorf("config key %q conflicts with a table of the same name", key)
		}
		node[leaf] = flat[key]
	}
	return root, nil
}
