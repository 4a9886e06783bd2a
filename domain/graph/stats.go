package graph

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// whitespaceRun matches the same characters as a JavaScript \s
var whitespaceRun = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)

// TopicID derives the stable id of the topic node for a label.
// The same label always yields the same id.
func TopicID(label string) string {
	return "topic-" + whitespaceRun.ReplaceAllString(strings.ToLower(label), "-")
}

// EdgeID derives an edge id from its ordered endpoints
func EdgeID(source, target string) string {
	return fmt.Sprintf("edge-%s-%s", source, target)
}

// Round2 rounds half away from zero to two decimals
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AverageLinkStrength is the mean edge weight rounded to two decimals, 0 without edges
func AverageLinkStrength(edges []Edge) float64 {
	if len(edges) == 0 {
		return 0
	}
	var sum float64
	for _, e := range edges {
		sum += e.Weight
	}
	return Round2(sum / float64(len(edges)))
}

// ComputeStats derives stats by counting node variants
func ComputeStats(nodes []Node, edges []Edge) Stats {
	stats := Stats{AvgLinkStrength: AverageLinkStrength(edges)}
	for _, n := range nodes {
		switch n.Type {
		case NodeTypeSentence:
			stats.TotalSentences++
		case NodeTypeTopic:
			stats.TopicCount++
		}
	}
	return stats
}

// Recompute replaces the stats of d with values derived from its nodes and edges
func (d *Data) Recompute() *Data {
	d.Stats = ComputeStats(d.Nodes, d.Edges)
	return d
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp accepts ISO-8601 timestamps and calendar dates.
// It returns the zero time when nothing matches.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// CalendarDate formats t as a UTC YYYY-MM-DD date
func CalendarDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TimestampLayout matches the millisecond ISO-8601 form used by the capture pipeline
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout as UTC
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
