// Package selection routes contact selections from clicks and deep links to
// the conversation loop and keeps the shareable location in sync.
package selection

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/conversation"
	"go.uber.org/zap"
)

// LinkParam is the query parameter carrying the contact id in a deep link.
const LinkParam = "contact_id"

// CheckpointKey is the store key of the last selected contact.
const CheckpointKey = "active_contact"

// ErrUnknownContact is returned when selecting a contact missing from the roster.
var ErrUnknownContact = errors.New("unknown contact")

// Target is the conversation loop as seen by the controller.
type Target interface {
	Select(contactID string) error
	Snapshot() *conversation.Snapshot
}

// Checkpoints persists small key/value state across runs.
type Checkpoints interface {
	SetState(key, value string) error
	GetState(key string) (string, bool, error)
}

// Change is the payload of selection.changed events.
type Change struct {
	ContactID string
	Location  string
}

// Controller turns user intent into contact selections.
type Controller struct {
	page   *url.URL
	target Target
	store  Checkpoints
	bus    *bus.Bus
	logger *zap.Logger

	mu        sync.Mutex
	location  string
	listeners []func(string)
}

// New creates a controller whose shareable links point at pageURL.
// store may be nil, which disables the checkpoint.
func New(pageURL string, target Target, store Checkpoints, b *bus.Bus, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	return &Controller{
		page:     page,
		target:   target,
		store:    store,
		bus:      b,
		logger:   logger.Named("selection"),
		location: page.String(),
	}, nil
}

// Click selects a contact from the roster.
func (c *Controller) Click(contactID string) error {
	if _, ok := c.target.Snapshot().Contact(contactID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, contactID)
	}
	return c.activate(contactID)
}

// FromLink selects the contact named by a deep link. Links without a
// contact, or naming a contact outside the roster, are ignored; selected
// reports whether anything happened.
func (c *Controller) FromLink(rawURL string) (selected bool, err error) {
	id, err := ParseLink(rawURL)
	if err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}
	if _, ok := c.target.Snapshot().Contact(id); !ok {
		c.logger.Info("ignoring deep link to unknown contact", zap.String("contact_id", id))
		return false, nil
	}
	return true, c.activate(id)
}

// Restore selects the contact chosen in the previous run, if it is still
// in the roster.
func (c *Controller) Restore() (selected bool, err error) {
	if c.store == nil {
		return false, nil
	}
	id, ok, err := c.store.GetState(CheckpointKey)
	if err != nil {
		return false, fmt.Errorf("read checkpoint: %w", err)
	}
	if !ok || id == "" {
		return false, nil
	}
	if _, known := c.target.Snapshot().Contact(id); !known {
		return false, nil
	}
	return true, c.activate(id)
}

// Start applies the initial selection: the deep link when one is given,
// otherwise the checkpoint.
func (c *Controller) Start(link string) error {
	if link != "" {
		selected, err := c.FromLink(link)
		if err != nil || selected {
			return err
		}
	}
	_, err := c.Restore()
	return err
}

// Location returns the shareable URL of the current selection.
func (c *Controller) Location() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.location
}

// OnLocationChange registers fn to be called with every new location.
func (c *Controller) OnLocationChange(fn func(location string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// LinkFor returns the deep link that selects contactID.
func (c *Controller) LinkFor(contactID string) string {
	return linkOn(c.page, contactID)
}

// Link builds the deep link selecting contactID on the chat page at pageURL.
func Link(pageURL, contactID string) (string, error) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	return linkOn(page, contactID), nil
}

func linkOn(page *url.URL, contactID string) string {
	u := *page
	q := u.Query()
	q.Set(LinkParam, contactID)
	u.RawQuery = q.Encode()
	return u.String()
}

// ShareQR renders the deep link of contactID as a terminal QR code.
func (c *Controller) ShareQR(contactID string) (string, error) {
	if strings.TrimSpace(contactID) == "" {
		return "", fmt.Errorf("%w: empty id", ErrUnknownContact)
	}
	return RenderQR(c.LinkFor(contactID))
}

func (c *Controller) activate(contactID string) error {
	if err := c.target.Select(contactID); err != nil {
		return err
	}
	loc := c.LinkFor(contactID)

	c.mu.Lock()
	c.location = loc
	listeners := append([]func(string){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(loc)
	}
	if c.store != nil {
		if err := c.store.SetState(CheckpointKey, contactID); err != nil {
			c.logger.Warn("failed to checkpoint selection", zap.Error(err))
		}
	}
	c.bus.Publish(bus.Event{Kind: bus.KindSelection, Payload: Change{ContactID: contactID, Location: loc}})
	c.logger.Debug("location updated", zap.String("location", loc))
	return nil
}

// ParseLink extracts the contact id from a deep link. Bare query strings
// ("?contact_id=8" or "contact_id=8") are accepted.
func ParseLink(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	q := u.Query()
	if u.RawQuery == "" && u.Scheme == "" && strings.Contains(u.Path, "=") {
		if q, err = url.ParseQuery(u.Path); err != nil {
			return "", fmt.Errorf("parse link: %w", err)
		}
	}
	return strings.TrimSpace(q.Get(LinkParam)), nil
}
