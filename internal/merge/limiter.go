package merge

import "fmt"

// Method is a windowing policy for chunk-id and file-path lists.
type Method string

// Windowing policies. FIFO retains the newest entries (tail of the
// insertion-ordered list); KEEP retains the oldest (head).
const (
	MethodFIFO Method = "FIFO"
	MethodKEEP Method = "KEEP"
)

// keepTruncateMarker is the truncate property value under KEEP windowing.
const keepTruncateMarker = "KEEP Old"

// ApplyLimit windows the insertion-ordered list to at most limit entries
// and returns the kept window plus the truncate marker ("" when nothing
// was dropped, "FIFO n/m" or "KEEP Old" otherwise). A non-positive limit
// disables windowing.
func ApplyLimit(list []string, limit int, method Method) ([]string, string) {
	if limit <= 0 || len(list) <= limit {
		return list, ""
	}

	if method == MethodKEEP {
		return list[:limit], keepTruncateMarker
	}

	return list[len(list)-limit:], fmt.Sprintf("FIFO %d/%d", limit, len(list))
}

// TruncatedPathMarker is the placeholder entry appended to a file-path
// list that was cut by windowing.
func TruncatedPathMarker(method Method) string {
	if method == MethodKEEP {
		return "...truncated...(KEEP Old)"
	}

	return "...truncated...(FIFO)"
}

// windowFilePaths applies the limit to a file-path list and appends the
// truncation marker entry when entries were dropped.
func windowFilePaths(paths []string, limit int, method Method) []string {
	kept, marker := ApplyLimit(paths, limit, method)
	if marker == "" {
		return kept
	}

	out := make([]string, 0, len(kept)+1)
	out = append(out, kept...)
	out = append(out, TruncatedPathMarker(method))

	return out
}
