package content

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// textAttrs are the block attributes that hold user-visible text.
var textAttrs = []string{"content", "text", "caption", "description", "title", "heading"}

// fieldBlockPrefix marks blocks that embed custom field data under attrs.data.
const fieldBlockPrefix = "acf/"

// BlockText flattens a block tree into its visible text, joined by spaces.
func BlockText(b models.Block) string {
	var parts []string
	if b.InnerHTML != "" {
		parts = appendClean(parts, b.InnerHTML)
	} else {
		for _, c := range b.InnerContent {
			parts = appendClean(parts, c)
		}
	}
	for _, key := range textAttrs {
		if v, ok := b.Attrs[key]; ok {
			for _, leaf := range leaves(v) {
				parts = appendClean(parts, leaf)
			}
		}
	}
	if strings.HasPrefix(b.Name, fieldBlockPrefix) {
		if data, ok := b.Attrs["data"]; ok {
			for _, leaf := range leaves(data) {
				parts = appendClean(parts, leaf)
			}
		}
	}
	for _, inner := range b.InnerBlocks {
		if text := BlockText(inner); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// FieldText renders a field as "Label: value". Lists of scalars are joined with
// ", ", repeater rows with a newline, and values inside a row or group with a space.
// Fields without a value render as "".
func FieldText(f models.Field) string {
	value := fieldValue(f.Value)
	if value == "" {
		return ""
	}
	if f.Label == "" {
		return value
	}
	return f.Label + ": " + value
}

func fieldValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []interface{}:
		if isRows(val) {
			var rows []string
			for _, row := range val {
				if text := joinClean(leaves(row), " "); text != "" {
					rows = append(rows, text)
				}
			}
			return strings.Join(rows, "\n")
		}
		return joinClean(leaves(val), ", ")
	case []string:
		return joinClean(val, ", ")
	case map[string]interface{}:
		return joinClean(leaves(val), " ")
	default:
		return joinClean(leaves(val), " ")
	}
}

func isRows(list []interface{}) bool {
	if len(list) == 0 {
		return false
	}
	for _, item := range list {
		if _, ok := item.(map[string]interface{}); !ok {
			return false
		}
	}
	return true
}

// leaves returns every scalar under v in a deterministic order. Map keys that
// start with an underscore hold field metadata and are skipped.
func leaves(v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case bool:
		if val {
			return []string{"true"}
		}
		return nil
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}
	case int:
		return []string{strconv.Itoa(val)}
	case int64:
		return []string{strconv.FormatInt(val, 10)}
	case []string:
		return val
	case []interface{}:
		var out []string
		for _, item := range val {
			out = append(out, leaves(item)...)
		}
		return out
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			if !strings.HasPrefix(k, "_") {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, leaves(val[k])...)
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}

func appendClean(parts []string, s string) []string {
	if text := CleanHTML(s); text != "" {
		return append(parts, text)
	}
	return parts
}

func joinClean(values []string, sep string) string {
	var parts []string
	for _, v := range values {
		parts = appendClean(parts, v)
	}
	return strings.Join(parts, sep)
}
