package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const jobPostingType = "JobPosting"

// Payload returns the JSON-LD text to stage for one CSV cell.
//
// A cell that already holds a JSON object is returned trimmed. A cell that
// holds an HTML page is searched for <script type="application/ld+json">
// blocks; the first JobPosting found (at the top level, inside an array, or
// inside @graph) wins, otherwise the first block. Anything else is
// returned unchanged and left for the transform stage to reject.
func Payload(cell string) []byte {
	s := strings.TrimSpace(cell)
	if strings.HasPrefix(s, "{") || !strings.Contains(s, "<") {
		return []byte(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return []byte(s)
	}

	var blocks []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return []byte(s)
	}

	for _, b := range blocks {
		if posting, ok := findJobPosting([]byte(b)); ok {
			return posting
		}
	}
	return []byte(blocks[0])
}

// findJobPosting looks for a JobPosting node in one JSON-LD block. A block
// that is itself the posting is returned byte for byte; nested nodes are
// re-encoded.
func findJobPosting(block []byte) ([]byte, bool) {
	dec := json.NewDecoder(bytes.NewReader(block))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}

	if obj, ok := v.(map[string]any); ok && isJobPosting(obj) {
		return block, true
	}

	node, ok := searchNodes(v)
	if !ok {
		return nil, false
	}
	out, err := json.Marshal(node)
	if err != nil {
		return nil, false
	}
	return out, true
}

func searchNodes(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		if isJobPosting(x) {
			return x, true
		}
		if graph, ok := x["@graph"]; ok {
			return searchNodes(graph)
		}
	case []any:
		for _, item := range x {
			if node, ok := searchNodes(item); ok {
				return node, true
			}
		}
	}
	return nil, false
}

func isJobPosting(obj map[string]any) bool {
	switch t := obj["@type"].(type) {
	case string:
		return t == jobPostingType
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == jobPostingType {
				return true
			}
		}
	}
	return false
}
