// Package normalize maps heterogeneous raw snapshot rows into the canonical
// vehicle record schema. Every input row either contributes an event to
// exactly one vehicle in the run's (state, year) partition or becomes a
// counted Rejection; nothing is dropped silently.
package normalize

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/lifecycle.report/internal/snapshot"
)

// Event is one canonical lifecycle event. Factors carries the numeric
// payload (risk_factor, severity, mileage, ...) and Flags the payload flags
// the classifier gives precedence to.
type Event struct {
	Seq     int64              `json:"seq"`
	Time    time.Time          `json:"time"`
	Type    string             `json:"type"`
	Factors map[string]float64 `json:"factors,omitempty"`
	Flags   []string           `json:"flags,omitempty"`
}

// VehicleRecord is the canonical per-vehicle schema. Immutable once
// returned from Normalize.
type VehicleRecord struct {
	VIN       string  `json:"vin"`
	State     string  `json:"state"`
	Year      int     `json:"year"`
	Make      string  `json:"make,omitempty"`
	ModelYear int     `json:"model_year,omitempty"`
	Odometer  float64 `json:"odometer,omitempty"`
	ZIP       string  `json:"zip,omitempty"`
	Events    []Event `json:"events"`
}

// Rejection explains why one raw record was excluded. Reasons come from a
// closed set so operators can aggregate them.
type Rejection struct {
	RecordID int64  `json:"record_id"`
	Source   string `json:"source"`
	Reason   string `json:"reason"`
}

// Rejection reasons.
const (
	ReasonEmptyFields      = "empty_fields"
	ReasonMissingVehicleID = "missing_vehicle_id"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonBadTimestamp     = "bad_timestamp"
	ReasonOutsidePartition = "outside_partition"
)

// Ruleset is the versioned normalization configuration: which raw field
// names resolve to the vehicle identifier and timestamp, and how source
// systems map onto canonical event types. The version is recorded in
// artifact provenance.
type Ruleset struct {
	Version string

	// VehicleIDKeys are tried in order; the first non-empty string wins.
	VehicleIDKeys []string
	// TimeKeys are tried in order; the first present field is parsed.
	TimeKeys []string
	// EventTypes maps a source system name to the canonical event type.
	// Sources not listed pass through lower-cased; the classifier decides
	// whether it knows them.
	EventTypes map[string]string
	// FlagKeys name fields whose values are payload flags (string or
	// array of strings).
	FlagKeys []string
}

// DefaultRuleset returns ruleset r1, covering the registration, usage,
// maintenance, inspection, incident and scrappage source systems.
func DefaultRuleset() Ruleset {
	return Ruleset{
		Version:       "r1",
		VehicleIDKeys: []string{"vin", "vehicle_vin", "vehicle_id"},
		TimeKeys:      []string{"date", "event_date", "crash_date", "inspection_date", "service_date", "reading_date", "timestamp"},
		EventTypes: map[string]string{
			"registration":   "registration",
			"renewal":        "registration",
			"manufacture":    "manufacture",
			"build":          "manufacture",
			"usage":          "usage",
			"telematics":     "usage",
			"odometer":       "usage",
			"maintenance":    "maintenance",
			"service":        "maintenance",
			"repair":         "maintenance",
			"inspection":     "inspection",
			"incident":       "incident",
			"crash":          "incident",
			"claim":          "incident",
			"scrappage":      "scrappage",
			"salvage":        "scrappage",
			"deregistration": "scrappage",
			"export":         "scrappage",
		},
		FlagKeys: []string{"flags"},
	}
}

// timeLayouts accepted for event timestamps. Date-only values resolve to
// midnight UTC.
var timeLayouts = []string{time.RFC3339, "2006-01-02"}

// Normalize converts raw rows into VehicleRecords for the (state, year)
// partition. Vehicle attributes (make, model year, odometer, ZIP) come from
// the first registration-source row seen for the VIN in snapshot order;
// later rows never overwrite them, so output is stable for a given
// snapshot. Returned vehicles are sorted by VIN with events sorted by
// (time, type, seq); rejections keep snapshot order.
func Normalize(recs []snapshot.RawRecord, state string, year int, rs Ruleset) ([]VehicleRecord, []Rejection) {
	state = strings.ToUpper(strings.TrimSpace(state))
	byVIN := make(map[string]*VehicleRecord)
	var rejections []Rejection

	reject := func(rec snapshot.RawRecord, reason string) {
		rejections = append(rejections, Rejection{RecordID: rec.ID, Source: rec.Source, Reason: reason})
	}

	for _, rec := range recs {
		if len(rec.Fields) == 0 {
			reject(rec, ReasonEmptyFields)
			continue
		}

		vin := firstString(rec.Fields, rs.VehicleIDKeys)
		if vin == "" {
			reject(rec, ReasonMissingVehicleID)
			continue
		}
		vin = strings.ToUpper(strings.TrimSpace(vin))

		rawTime, timeKey := firstPresent(rec.Fields, rs.TimeKeys)
		if timeKey == "" {
			reject(rec, ReasonMissingTimestamp)
			continue
		}
		ts, ok := parseTime(rawTime)
		if !ok {
			reject(rec, ReasonBadTimestamp)
			continue
		}

		if s, ok := rec.Fields["state"].(string); ok {
			if strings.ToUpper(strings.TrimSpace(s)) != state {
				reject(rec, ReasonOutsidePartition)
				continue
			}
		}
		if ry, ok := numeric(rec.Fields["reg_year"]); ok && int(ry) != year {
			reject(rec, ReasonOutsidePartition)
			continue
		}

		eventType := strings.ToLower(rec.Source)
		if mapped, ok := rs.EventTypes[eventType]; ok {
			eventType = mapped
		}

		v := byVIN[vin]
		if v == nil {
			v = &VehicleRecord{VIN: vin, State: state, Year: year, Odometer: -1}
			byVIN[vin] = v
		}

		consumed := map[string]bool{timeKey: true}
		for _, k := range rs.VehicleIDKeys {
			consumed[k] = true
		}
		for _, k := range rs.FlagKeys {
			consumed[k] = true
		}

		if eventType == "registration" {
			if mk, ok := rec.Fields["make"].(string); ok && v.Make == "" {
				v.Make = strings.ToUpper(strings.TrimSpace(mk))
			}
			if my, ok := numeric(rec.Fields["model_year"]); ok && v.ModelYear == 0 {
				v.ModelYear = int(my)
			}
			if od, ok := numeric(rec.Fields["odometer"]); ok && v.Odometer < 0 {
				v.Odometer = od
			}
			if zip, ok := zipString(rec.Fields["zip_code"]); ok && v.ZIP == "" {
				v.ZIP = zip
			}
			consumed["make"] = true
			consumed["model_year"] = true
			consumed["odometer"] = true
			consumed["zip_code"] = true
			consumed["reg_year"] = true
			consumed["state"] = true
		}

		ev := Event{Seq: rec.ID, Time: ts, Type: eventType}
		for k, raw := range rec.Fields {
			if consumed[k] {
				continue
			}
			if f, ok := numeric(raw); ok {
				if ev.Factors == nil {
					ev.Factors = make(map[string]float64)
				}
				ev.Factors[k] = f
			}
		}
		ev.Flags = collectFlags(rec.Fields, rs.FlagKeys)
		v.Events = append(v.Events, ev)
	}

	vehicles := make([]VehicleRecord, 0, len(byVIN))
	for _, v := range byVIN {
		sort.Slice(v.Events, func(i, j int) bool {
			a, b := v.Events[i], v.Events[j]
			if !a.Time.Equal(b.Time) {
				return a.Time.Before(b.Time)
			}
			if a.Type != b.Type {
				return a.Type < b.Type
			}
			return a.Seq < b.Seq
		})
		vehicles = append(vehicles, *v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].VIN < vehicles[j].VIN })

	return vehicles, rejections
}

// CountReasons tallies rejections by reason.
func CountReasons(rejections []Rejection) map[string]int {
	if len(rejections) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, r := range rejections {
		counts[r.Reason]++
	}
	return counts
}

func firstString(fields map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func firstPresent(fields map[string]any, keys []string) (any, string) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v, k
		}
	}
	return nil, ""
}

func parseTime(raw any) (time.Time, bool) {
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// numeric accepts JSON numbers (float64 after decoding) and ints from
// in-process fixtures.
func numeric(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// zipString keeps ZIP codes as strings even when a source encodes them as
// numbers.
func zipString(raw any) (string, bool) {
	switch z := raw.(type) {
	case string:
		z = strings.TrimSpace(z)
		return z, z != ""
	case float64:
		if z <= 0 || z != math.Trunc(z) {
			return "", false
		}
		return strconv.Itoa(int(z)), true
	default:
		return "", false
	}
}

func collectFlags(fields map[string]any, flagKeys []string) []string {
	var flags []string
	for _, k := range flagKeys {
		switch v := fields[k].(type) {
		case string:
			if s := strings.ToLower(strings.TrimSpace(v)); s != "" {
				flags = append(flags, s)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
						flags = append(flags, s)
					}
				}
			}
		}
	}
	if len(flags) == 0 {
		return nil
	}
	sort.Strings(flags)
	return flags
}
