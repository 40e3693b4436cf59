package calendar

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type EventType string

const (
	TypeStudy EventType = "study"
	TypeExam  EventType = "exam"
	TypeOther EventType = "other"
)

// Untitled is the title of events that carry none.
const Untitled = "Untitled"

// Event is a calendar entry normalized from whatever shape the generator
// produced.
type Event struct {
	ID          string
	Title       string
	Description string
	Date        time.Time
	Type        EventType

	Raw json.RawMessage
}

// rawEvent lists every field name the generator has been seen to use.
type rawEvent struct {
	ID          json.RawMessage `json:"id"`
	Summary     string          `json:"summary"`
	Title       string          `json:"title"`
	NomeEvento  string          `json:"nome_evento"`
	Description string          `json:"description"`
	Descricao   string          `json:"descricao"`
	Date        string          `json:"date"`
	DataEvento  string          `json:"data_evento"`
	Data        string          `json:"data"`
	ColorID     string          `json:"colorId"`
	Type        string          `json:"type"`
	Tipo        string          `json:"tipo"`
	Start       *struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// DecodeEvents normalizes a stored events document. Anything other than a
// JSON array yields no events; invalid JSON is an error.
func DecodeEvents(raw []byte, now time.Time) ([]Event, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	if _, ok := doc.([]interface{}); !ok {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	events := make([]Event, 0, len(items))
	for i, item := range items {
		var r rawEvent
		// non-object entries still become events with every field defaulted
		_ = json.Unmarshal(item, &r)
		events = append(events, Event{
			ID:          eventID(r.ID, i),
			Title:       firstNonEmpty(r.Summary, r.Title, r.NomeEvento, Untitled),
			Description: firstNonEmpty(r.Description, r.Descricao),
			Date:        eventDate(r, now),
			Type:        eventType(r),
			Raw:         item,
		})
	}
	return events, nil
}

func eventID(raw json.RawMessage, index int) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n != "" {
		return n.String()
	}
	return strconv.Itoa(index)
}

func eventDate(r rawEvent, now time.Time) time.Time {
	var candidates []string
	if r.Start != nil {
		candidates = append(candidates, r.Start.DateTime, r.Start.Date)
	}
	candidates = append(candidates, r.Date, r.DataEvento, r.Data)

	value := firstNonEmpty(candidates...)
	if value == "" {
		return now
	}
	if t, ok := ParseDate(value, now.Location()); ok {
		return t
	}
	return now
}

// ParseDate accepts RFC 3339 timestamps and the date-only forms the
// generator emits. Values without a zone are read in loc.
func ParseDate(value string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func eventType(r rawEvent) EventType {
	switch {
	case r.ColorID == "10" || r.Type == "study" || r.Tipo == "estudo":
		return TypeStudy
	case r.ColorID == "11" || r.Type == "exam" || r.Tipo == "prova":
		return TypeExam
	default:
		return TypeOther
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ---------------------------------------------------
// Views
// ---------------------------------------------------

// Upcoming returns events from the start of now's day onwards, earliest
// first. A limit <= 0 returns them all.
func Upcoming(events []Event, now time.Time, limit int) []Event {
	midnight := StartOfDay(now)
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.Date.Before(midnight) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// OnDay returns the events on the same calendar date as day, in day's
// location.
func OnDay(events []Event, day time.Time) []Event {
	var out []Event
	for _, e := range events {
		if SameDay(e.Date.In(day.Location()), day) {
			out = append(out, e)
		}
	}
	return out
}

// MonthGrid returns every day shown in a month view: from the start of the
// week holding the 1st to the end of the week holding the last day.
func MonthGrid(month time.Time, weekStart time.Weekday) []time.Time {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	last := first.AddDate(0, 1, -1)

	start := first.AddDate(0, 0, -daysSince(first.Weekday(), weekStart))
	weekEnd := (weekStart + 6) % 7
	end := last.AddDate(0, 0, daysSince(weekEnd, last.Weekday()))

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// daysSince is how many days back from day the previous from falls, 0..6.
func daysSince(day, from time.Weekday) int {
	return (int(day) - int(from) + 7) % 7
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Counts tallies events per type.
func Counts(events []Event) map[EventType]int {
	out := make(map[EventType]int, 3)
	for _, e := range events {
		out[e.Type]++
	}
	return out
}
