package gateway

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/daveremy/clubexpress-sdk/internal/parse"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

const (
	dateLayout     = "2006-01-02"
	listDateLayout = "01/02/2006"
)

// FetchBookings scrapes the member's reservation list and returns the bookings dated from..to
// inclusive.
func (c *Client) FetchBookings(ctx context.Context, from, to time.Time) ([]rules.Booking, error) {
	query := url.Values{
		"from": {from.Format(dateLayout)},
		"to":   {to.Format(dateLayout)},
	}
	if c.memberID != "" {
		query.Set("member_id", c.memberID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.paths.Bookings, query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	body, err := c.do(req, "fetch bookings")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bookings page: %w", err)
	}

	first, last := slot.StartOfDay(from), slot.StartOfDay(to)
	var bookings []rules.Booking
	doc.Find("tr[data-booking-id]").Each(func(i int, s *goquery.Selection) {
		b, err := c.parseBookingRow(s)
		if err != nil {
			log.Printf("Warning: skipping reservation row %d: %v", i, err)
			return
		}
		if b.Date.Before(first) || b.Date.After(last) {
			return
		}
		bookings = append(bookings, b)
	})
	return bookings, nil
}

func (c *Client) parseBookingRow(s *goquery.Selection) (rules.Booking, error) {
	id, _ := s.Attr("data-booking-id")
	courtID, _ := s.Attr("data-court-id")

	dateText := strings.TrimSpace(s.Find("td.date").Text())
	date, err := time.ParseInLocation(listDateLayout, dateText, c.loc)
	if err != nil {
		return rules.Booking{}, fmt.Errorf("booking %s: bad date %q: %w", id, dateText, err)
	}

	timeText := strings.TrimSpace(s.Find("td.time").Text())
	startText, endText, ok := strings.Cut(timeText, "-")
	if !ok {
		return rules.Booking{}, fmt.Errorf("booking %s: bad time range %q", id, timeText)
	}
	start, err := parseClock(startText)
	if err != nil {
		return rules.Booking{}, fmt.Errorf("booking %s: %w", id, err)
	}
	end, err := parseClock(endText)
	if err != nil {
		return rules.Booking{}, fmt.Errorf("booking %s: %w", id, err)
	}

	status := rules.StatusConfirmed
	switch strings.ToLower(strings.TrimSpace(s.Find("td.status").Text())) {
	case "cancelled", "canceled":
		status = rules.StatusCancelled
	}

	return rules.Booking{
		ID:        id,
		CourtID:   courtID,
		CourtName: parse.NormalizeName(s.Find("td.court").Text()),
		Date:      date,
		Start:     start,
		End:       end,
		Status:    status,
	}, nil
}

// parseClock accepts "8:00 AM" as well as "08:00".
func parseClock(s string) (slot.TimeOfDay, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range []string{"3:04 PM", "3:04PM", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return slot.Of(t), nil
		}
	}
	return slot.TimeOfDay{}, fmt.Errorf("bad clock time %q", s)
}

// SubmitBooking posts the reservation form and returns the booking the platform confirmed.
func (c *Client) SubmitBooking(ctx context.Context, r rules.Request) (rules.Booking, error) {
	form := url.Values{
		"court_id": {r.CourtID},
		"date":     {r.Date.Format(dateLayout)},
		"start":    {r.Start.String()},
		"end":      {r.End.String()},
	}
	if c.memberID != "" {
		form.Set("member_id", c.memberID)
	}
	if r.Purpose != "" {
		form.Set("purpose", r.Purpose)
	}
	if r.Category != "" {
		form.Set("category", r.Category)
	}
	for _, p := range r.Participants {
		form.Add("participant", p)
	}

	body, err := c.postForm(ctx, "submit booking", c.paths.Book, form)
	if err != nil {
		return rules.Booking{}, err
	}
	id, err := parseResult("booking", body)
	if err != nil {
		return rules.Booking{}, err
	}
	return rules.Booking{
		ID:      id,
		CourtID: r.CourtID,
		Date:    r.Date,
		Start:   r.Start,
		End:     r.End,
		Status:  rules.StatusConfirmed,
	}, nil
}

// SubmitCancellation cancels a booking the member holds. reason is optional.
func (c *Client) SubmitCancellation(ctx context.Context, bookingID, reason string) error {
	form := url.Values{"booking_id": {bookingID}}
	if c.memberID != "" {
		form.Set("member_id", c.memberID)
	}
	if reason != "" {
		form.Set("reason", reason)
	}
	body, err := c.postForm(ctx, "submit cancellation", c.paths.Cancel, form)
	if err != nil {
		return err
	}
	_, err = parseResult("cancellation", body)
	return err
}

// parseResult reads the confirmation or error panel of a result page. It returns the booking ID
// carried by the confirmation panel, which may be empty for cancellations.
func parseResult(op string, body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse %s result page: %w", op, err)
	}

	if msg := strings.TrimSpace(doc.Find(".error-message, .validation-summary-errors").First().Text()); msg != "" {
		return "", &RejectedError{Op: op, Message: strings.Join(strings.Fields(msg), " ")}
	}

	confirmation := doc.Find(".confirmation").First()
	if confirmation.Length() == 0 {
		return "", fmt.Errorf("%s result page has neither confirmation nor error", op)
	}
	id, _ := confirmation.Attr("data-booking-id")
	return id, nil
}
