package template

import (
	"strconv"
	"strings"
)

// extractPath resolves a dotted path with optional [n] indexing against
// decoded JSON, e.g. "data.attributes.stats" or "vulnerabilities[0].cve.id".
// An empty path or "$" returns the document itself. A path that matches
// nothing yields nil, never an error.
func extractPath(doc any, path string) any {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		return doc
	}
	path = strings.TrimPrefix(path, "$.")

	cur := doc
	for _, seg := range strings.Split(path, ".") {
		name, idxs, ok := parseSegment(seg)
		if !ok {
			return nil
		}
		if name != "" {
			obj, isMap := cur.(map[string]any)
			if !isMap {
				return nil
			}
			cur, isMap = obj[name]
			if !isMap {
				return nil
			}
		}
		for _, i := range idxs {
			arr, isArr := cur.([]any)
			if !isArr || i < 0 || i >= len(arr) {
				return nil
			}
			cur = arr[i]
		}
	}
	return cur
}

// parseSegment splits "name[0][1]" into its field name and indices. A bare
// "[0]" (no name) indexes the current value directly.
func parseSegment(seg string) (name string, idxs []int, ok bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, nil, seg != ""
	}
	name = seg[:open]
	rest := seg[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return "", nil, false
		}
		n, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, false
		}
		idxs = append(idxs, n)
		rest = rest[close+1:]
	}
	return name, idxs, true
}
