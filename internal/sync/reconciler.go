package sync

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/zap"
)

// Reconciler builds the startup roster from the store and configured seeds.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger.Named("reconciler")}
}

// Roster merges seeds into the store and returns every known contact.
// Presence is not known until the channel reports it, so everyone starts
// offline.
func (r *Reconciler) Roster(seeds []chat.Contact) ([]chat.Contact, error) {
	rows := make([]store.Contact, 0, len(seeds))
	for _, s := range seeds {
		if s.ID != "" {
			rows = append(rows, store.Contact{ID: s.ID, DisplayName: s.DisplayName})
		}
	}
	if err := r.db.SeedContacts(rows); err != nil {
		return nil, fmt.Errorf("seed contacts: %w", err)
	}
	if err := r.db.ResetPresence(); err != nil {
		return nil, fmt.Errorf("reset presence: %w", err)
	}
	stored, err := r.db.ListContacts()
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	out := make([]chat.Contact, len(stored))
	for i, c := range stored {
		out[i] = fromStore(c)
	}
	r.logger.Info("roster loaded", zap.Int("contacts", len(out)), zap.Int("seeds", len(rows)))
	return out, nil
}

func fromStore(c store.Contact) chat.Contact {
	out := chat.Contact{
		ID:                 c.ID,
		DisplayName:        c.DisplayName,
		Online:             c.Online,
		LastMessagePreview: c.LastMessagePreview,
		UnreadCount:        c.UnreadCount,
	}
	if c.LastMessageAt > 0 {
		out.LastMessageAt = time.UnixMilli(c.LastMessageAt)
	}
	return out
}
