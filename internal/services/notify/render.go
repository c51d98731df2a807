package notify

import (
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"

	pbtemplate "github.com/pocketbase/pocketbase/tools/template"
	"github.com/skip2/go-qrcode"
)

var (
	//go:embed templates/ticket.html
	ticketTemplate string

	//go:embed templates/transfer_reservation.html
	reservationTemplate string
)

// TicketView feeds templates/ticket.html.
type TicketView struct {
	EventName string
	EventDate string
	Name      string
	TicketID  string
	TypeLabel string
	QRDataURL template.URL
}

// ReservationView feeds templates/transfer_reservation.html.
type ReservationView struct {
	EventName string
	EventDate string
	Name      string
	Amount    string
	Currency  string
	Reference string
	IBAN      string
	BIC       string
}

// Renderer turns views into HTML bodies with the PocketBase template
// registry, which escapes every field.
type Renderer struct {
	registry *pbtemplate.Registry
}

func NewRenderer() *Renderer {
	return &Renderer{registry: pbtemplate.NewRegistry()}
}

func (r *Renderer) Ticket(view TicketView) (string, error) {
	html, err := r.registry.LoadString(ticketTemplate).Render(view)
	if err != nil {
		return "", fmt.Errorf("render ticket email: %w", err)
	}
	return html, nil
}

func (r *Renderer) Reservation(view ReservationView) (string, error) {
	html, err := r.registry.LoadString(reservationTemplate).Render(view)
	if err != nil {
		return "", fmt.Errorf("render reservation email: %w", err)
	}
	return html, nil
}

// EncodeQR renders text as a 256px PNG QR code.
func EncodeQR(text string) ([]byte, error) {
	png, err := qrcode.Encode(text, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// PNGDataURL embeds png bytes in a data: URL safe for an img src.
func PNGDataURL(png []byte) template.URL {
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
}
