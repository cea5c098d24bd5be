package calendar

import (
	"fmt"
	"io"
	"time"

	ics "github.com/emersion/go-ical"

	"github.com/room-display/backend/internal/storage/models"
)

const productID = "-//Room Display//Room Schedule//EN"

// WriteICS encodes a room's events as an iCalendar document.
func WriteICS(w io.Writer, room models.Room, events []models.Event, stamp time.Time) error {
	if len(events) == 0 {
		// the encoder rejects a VCALENDAR without components
		_, err := fmt.Fprintf(w, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:%s\r\nEND:VCALENDAR\r\n", productID)
		return err
	}

	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropVersion, "2.0")
	cal.Props.SetText(ics.PropProductID, productID)
	cal.Props.SetText("X-WR-CALNAME", room.Name)

	for _, ev := range events {
		comp := ics.NewComponent(ics.CompEvent)

		comp.Props.SetText(ics.PropUID, fmt.Sprintf("%s@%s", ev.ID, room.ID))
		comp.Props.SetText(ics.PropSummary, ev.Title)
		comp.Props.SetDateTime(ics.PropDateTimeStamp, stamp.UTC())
		comp.Props.SetDateTime(ics.PropDateTimeStart, ev.Start.UTC())
		comp.Props.SetDateTime(ics.PropDateTimeEnd, ev.End.UTC())
		comp.Props.SetText(ics.PropLocation, room.Name)

		if ev.Description != "" {
			comp.Props.SetText(ics.PropDescription, ev.Description)
		}
		if ev.Organizer != "" {
			comp.Props.SetText("X-ROOM-BOOKER", ev.Organizer)
		}

		cal.Children = append(cal.Children, comp)
	}

	if err := ics.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	return nil
}
