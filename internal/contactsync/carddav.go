// Package contactsync pushes customer contact cards to a CardDAV
// address book so staff see booking customers in their phone contacts.
package contactsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"
	"github.com/google/uuid"

	"github.com/nugget/concierge/internal/booking"
	"github.com/nugget/concierge/internal/httpkit"
)

// Config points at the address book collection.
type Config struct {
	URL      string // address book collection, e.g. https://dav.example.com/addressbooks/me/default/
	Username string
	Password string
}

// addressBook abstracts the CardDAV client method we use.
type addressBook interface {
	PutAddressObject(ctx context.Context, path string, card vcard.Card) (*carddav.AddressObject, error)
}

// CardDAV writes one vCard per customer. Cards are keyed by a UID
// derived from the customer ID, so repeated pushes update in place.
type CardDAV struct {
	book   addressBook
	dir    string
	note   string
	logger *slog.Logger
}

// New creates a CardDAV syncer. note is written to each card's NOTE
// field, typically the business name.
func New(cfg Config, note string, logger *slog.Logger) (*CardDAV, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse carddav url: %w", err)
	}

	var hc webdav.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, cfg.Username, cfg.Password)
	}
	client, err := carddav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create carddav client: %w", err)
	}
	return newCardDAV(client, u.Path, note, logger), nil
}

func newCardDAV(book addressBook, dir, note string, logger *slog.Logger) *CardDAV {
	if logger == nil {
		logger = slog.Default()
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return &CardDAV{book: book, dir: dir, note: note, logger: logger.With("component", "carddav")}
}

// PushCustomer creates or replaces the customer's card.
func (c *CardDAV) PushCustomer(ctx context.Context, cust booking.Customer) error {
	card := BuildCard(cust, c.note)
	path := c.dir + cardUID(cust.ID) + ".vcf"

	obj, err := c.book.PutAddressObject(ctx, path, card)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	etag := ""
	if obj != nil {
		etag = obj.ETag
	}
	c.logger.Debug("contact card pushed", "customer", cust.ID, "path", path, "etag", etag)
	return nil
}

// BuildCard renders a customer as a vCard 4.0.
func BuildCard(cust booking.Customer, note string) vcard.Card {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldVersion, "4.0")
	card.SetValue(vcard.FieldUID, "urn:uuid:"+cardUID(cust.ID))

	name := strings.TrimSpace(cust.Name)
	if name == "" {
		name = cust.ID
	}
	card.SetValue(vcard.FieldFormattedName, name)
	given, family, _ := strings.Cut(name, " ")
	card.SetName(&vcard.Name{GivenName: given, FamilyName: family})

	switch {
	case strings.Contains(cust.ID, "@"):
		card.SetValue(vcard.FieldEmail, cust.ID)
	case isPhone(cust.ID):
		card.Add(vcard.FieldTelephone, &vcard.Field{
			Value:  "tel:+" + strings.TrimPrefix(cust.ID, "+"),
			Params: vcard.Params{vcard.ParamType: {vcard.TypeCell}, vcard.ParamValue: {"uri"}},
		})
	default:
		card.SetValue(vcard.FieldIMPP, cust.ID)
	}

	if note != "" {
		card.SetValue(vcard.FieldNote, note)
	}
	if !cust.CreatedAt.IsZero() {
		card.SetRevision(cust.CreatedAt)
	}
	return card
}

// cardUID derives a stable UUID from a customer ID.
func cardUID(customerID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("concierge:customer:"+customerID)).String()
}

func isPhone(s string) bool {
	s = strings.TrimPrefix(s, "+")
	if len(s) < 6 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

