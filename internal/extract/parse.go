package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/titanous/json5"

	"github.com/go-scripts/siteextract/pkg/common"
)

// DataTypeUnknown labels results the model reply could not be parsed into.
const DataTypeUnknown = "unknown"

var errNoObject = errors.New("reply contains no JSON object")

type rawReply struct {
	Items    []json.RawMessage `json:"items"`
	Summary  string            `json:"summary"`
	DataType string            `json:"data_type"`
	Columns  []string          `json:"columns"`
}

// EmptyResult returns a result with no items.
func EmptyResult(dataType, summary string) common.ExtractionResult {
	return common.ExtractionResult{
		Items:    []common.Record{},
		Summary:  summary,
		DataType: dataType,
		Columns:  []string{},
	}
}

// ParseReply turns a raw model reply into a normalized result. It never
// fails: an unparseable reply yields an empty "unknown" result.
func ParseReply(raw string) common.ExtractionResult {
	res, err := parseReply(raw)
	if err != nil {
		return parseFailure(err)
	}
	return res
}

func parseFailure(err error) common.ExtractionResult {
	reason := "the reply was not valid JSON"
	if errors.Is(err, errNoObject) {
		reason = "the reply did not contain a JSON object"
	}
	return EmptyResult(DataTypeUnknown,
		fmt.Sprintf("No structured data could be extracted from the page content: %s.", reason))
}

func parseReply(raw string) (common.ExtractionResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return common.ExtractionResult{}, errNoObject
	}
	body := raw[start : end+1]

	res, err := parseStrict(body)
	if err != nil {
		var lenientErr error
		res, lenientErr = parseLenient(body)
		if lenientErr != nil {
			return common.ExtractionResult{}, fmt.Errorf("strict: %v; lenient: %w", err, lenientErr)
		}
	}
	return Normalize(res), nil
}

func parseStrict(body string) (common.ExtractionResult, error) {
	var r rawReply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return common.ExtractionResult{}, err
	}

	items := make([]common.Record, 0, len(r.Items))
	for _, item := range r.Items {
		var rec common.Record
		if err := json.Unmarshal(item, &rec); err != nil || rec.Len() == 0 {
			continue
		}
		items = append(items, rec)
	}
	return common.ExtractionResult{
		Items:    items,
		Summary:  r.Summary,
		DataType: r.DataType,
		Columns:  r.Columns,
	}, nil
}

// parseLenient accepts JSON5 (single quotes, trailing commas, comments).
// Object key order is lost, so records follow the reply's columns and then
// the remaining keys alphabetically.
func parseLenient(body string) (common.ExtractionResult, error) {
	var m map[string]any
	if err := json5.Unmarshal([]byte(body), &m); err != nil {
		return common.ExtractionResult{}, err
	}

	var columns []string
	if list, ok := m["columns"].([]any); ok {
		for _, c := range list {
			columns = append(columns, common.FormatValue(c))
		}
	}

	var items []common.Record
	if list, ok := m["items"].([]any); ok {
		for _, entry := range list {
			obj, ok := entry.(map[string]any)
			if !ok || len(obj) == 0 {
				continue
			}
			items = append(items, recordFromMap(obj, columns))
		}
	}

	return common.ExtractionResult{
		Items:    items,
		Summary:  common.FormatValue(m["summary"]),
		DataType: common.FormatValue(m["data_type"]),
		Columns:  columns,
	}, nil
}

func recordFromMap(obj map[string]any, order []string) common.Record {
	var rec common.Record
	for _, k := range order {
		if v, ok := obj[k]; ok {
			rec.Set(k, v)
		}
	}
	rest := make([]string, 0, len(obj))
	for k := range obj {
		if _, ok := rec.Get(k); !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		rec.Set(k, obj[k])
	}
	return rec
}

// Normalize enforces the result invariants: items is never nil, data_type
// and summary are never empty and columns cover every record key.
func Normalize(res common.ExtractionResult) common.ExtractionResult {
	if res.Items == nil {
		res.Items = []common.Record{}
	}
	res.DataType = strings.TrimSpace(res.DataType)
	if res.DataType == "" {
		res.DataType = DataTypeUnknown
	}
	res.Columns = common.InferColumns(res.Columns, res.Items)
	res.Summary = strings.TrimSpace(res.Summary)
	if res.Summary == "" {
		res.Summary = defaultSummary(len(res.Items))
	}
	return res
}

func defaultSummary(n int) string {
	switch n {
	case 0:
		return "No data matching the query was found on the crawled pages."
	case 1:
		return "Extracted 1 item from the crawled pages."
	default:
		return fmt.Sprintf("Extracted %d items from the crawled pages.", n)
	}
}
