package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Mainfreight/integration-jira-cloud/internal/config"
	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// affectedURLRe pulls the vulnerable URL out of the plugin output. Plugins
// report it in one of three shapes: "detected on <url>", a "URL" header
// block, or a "URL: <url>" line.
var affectedURLRe = regexp.MustCompile(
	`(?:detected\son\s([\w:/.\-]+))` +
		`|(?:URL\n-----\n(.+)\n)` +
		`|(?:URL:\s?([\w:/.\-]+))`)

var titleCaser = cases.Title(language.English)

// Finding is a single row of a scan CSV export, decoded into native types.
type Finding struct {
	PluginID     int     `mapstructure:"Plugin ID"`
	CVE          string  `mapstructure:"CVE"`
	CVSS         float64 `mapstructure:"CVSS"`
	Risk         string  `mapstructure:"Risk"`
	Host         string  `mapstructure:"Host"`
	Protocol     string  `mapstructure:"Protocol"`
	Port         int     `mapstructure:"Port"`
	Name         string  `mapstructure:"Name"`
	Synopsis     string  `mapstructure:"Synopsis"`
	PluginOutput string  `mapstructure:"Plugin Output"`
}

// decodeFinding decodes a CSV row into a Finding. Empty columns are dropped
// before decoding so numeric fields tolerate blank values.
func decodeFinding(row map[string]string) (Finding, error) {
	cleaned := make(map[string]any, len(row))
	for k, v := range row {
		if v == "" {
			continue
		}
		cleaned[k] = v
	}

	var f Finding
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &f,
	})
	if err != nil {
		return Finding{}, fmt.Errorf("could not create row decoder: %v", err)
	}
	if err := dec.Decode(cleaned); err != nil {
		return Finding{}, fmt.Errorf("could not decode row: %v", err)
	}
	return f, nil
}

// Key identifies a finding across runs: one vulnerability on one service.
func (f Finding) Key() string {
	return fmt.Sprintf("%d/%s/%s/%d", f.PluginID, f.Host, f.Protocol, f.Port)
}

// ExtractURL returns the affected URL found in the plugin output, or "".
func ExtractURL(pluginOutput string) string {
	m := affectedURLRe.FindStringSubmatch(pluginOutput)
	if m == nil {
		return ""
	}
	for _, group := range m[1:] {
		if group != "" {
			return group
		}
	}
	return ""
}

// TaskSummary builds the parent issue summary for a finding.
func TaskSummary(f Finding) string {
	return truncateSummary(fmt.Sprintf("[%d] %s", f.PluginID, f.Name))
}

// SubtaskSummary builds the per-instance issue summary for a finding.
// URLs may blow the summary past Jira's limit, so it is truncated with a
// trailing "..".
func SubtaskSummary(f Finding, url string) string {
	return truncateSummary(fmt.Sprintf("[%d] %s: %s", f.PluginID, f.Name, url))
}

func truncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= constants.MaxSummaryLen {
		return s
	}
	return string(runes[:constants.MaxSummaryLen-2]) + ".."
}

// NormalizeSeverities title-cases the configured severities so they compare
// against the Risk column of the export.
func NormalizeSeverities(severities []string) []string {
	out := make([]string, len(severities))
	for i, s := range severities {
		out[i] = titleCaser.String(strings.ToLower(s))
	}
	return out
}

// fieldValue resolves the raw value of a configured field for a row.
func fieldValue(def config.Field, row map[string]string) string {
	if def.StaticValue != "" {
		return def.StaticValue
	}
	return row[def.CSVField]
}

// processValue converts a raw column value into the shape Jira expects for
// the field type.
func processValue(def config.Field, value string) (any, error) {
	switch def.Type {
	case config.TypeLabels:
		return splitLabels(value), nil
	case config.TypeFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("could not parse %s as number for field %s: %v", value, def.Name, err)
		}
		return f, nil
	case config.TypeDateTime:
		t, err := parseTime(value)
		if err != nil {
			return nil, fmt.Errorf("could not parse %s as time for field %s: %v", value, def.Name, err)
		}
		return t.Format("2006-01-02T15:04:05.000-0700"), nil
	default:
		return value, nil
	}
}

// splitLabels splits a column carrying multiple values. Jira labels cannot
// contain spaces, so space-separated lists split too.
func splitLabels(value string) []string {
	labels := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n'
	})
	if len(labels) == 0 {
		return nil
	}
	return labels
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"Jan 2, 2006 15:04:05 MST",
}

func parseTime(value string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// jqlStatement builds the dedup search clause for a field and its processed
// value. Labels compare with equality, text fields with a contains match,
// multi-valued fields with an in clause and absent values with is EMPTY.
func jqlStatement(def config.Field, processed any) string {
	oper := "~"
	if def.Type == config.TypeLabels {
		oper = "="
	}

	var value string
	switch v := processed.(type) {
	case nil:
		oper = "is"
		value = "EMPTY"
	case []string:
		if len(v) == 0 {
			oper = "is"
			value = "EMPTY"
		} else if len(v) == 1 {
			value = fmt.Sprintf("%q", v[0])
		} else {
			oper = "in"
			quoted := make([]string, len(v))
			for i, e := range v {
				quoted[i] = fmt.Sprintf("%q", e)
			}
			value = "(" + strings.Join(quoted, ",") + ")"
		}
	case float64:
		value = fmt.Sprintf("%q", strconv.FormatFloat(v, 'f', -1, 64))
	default:
		value = fmt.Sprintf("%q", fmt.Sprint(v))
	}

	return fmt.Sprintf("%q %s %s", def.JiraField, oper, value)
}

// adfDocument renders the configured description sections for a row into an
// Atlassian document: a level one heading per section followed by the column
// text, or "No Output" when the column is empty.
func adfDocument(sections []config.Section, row map[string]string) map[string]any {
	var content []map[string]any
	for _, section := range sections {
		content = append(content, map[string]any{
			"type":    "heading",
			"attrs":   map[string]any{"level": 1},
			"content": []map[string]any{{"type": "text", "text": section.Name}},
		})

		text := row[section.CSVField]
		if text == "" {
			text = "No Output"
		}
		content = append(content, map[string]any{
			"type":    "paragraph",
			"content": []map[string]any{{"type": "text", "text": text}},
		})
	}

	return map[string]any{
		"version": 1,
		"type":    "doc",
		"content": content,
	}
}
