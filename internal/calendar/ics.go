package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
)

// WriteICS renders a snapshot as an iCalendar document, for handing the
// cached agenda to other tools.
func WriteICS(w io.Writer, events []Event) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Calendar Notify//EN")

	now := time.Now().UTC()
	for _, event := range events {
		vevent := ical.NewComponent(ical.CompEvent)
		vevent.Props.SetText(ical.PropUID, event.ID)
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)

		if event.Title != "" {
			vevent.Props.SetText(ical.PropSummary, event.Title)
		}
		if event.Location != "" {
			vevent.Props.SetText(ical.PropLocation, event.Location)
		}

		if event.AllDay {
			dtstart := ical.NewProp(ical.PropDateTimeStart)
			dtstart.SetDate(event.Start)
			vevent.Props.Set(dtstart)

			dtend := ical.NewProp(ical.PropDateTimeEnd)
			dtend.SetDate(event.End)
			vevent.Props.Set(dtend)
		} else {
			vevent.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
			vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
		}

		cal.Children = append(cal.Children, vevent)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}
	return nil
}
