// Package ads loads the ad slot catalog and rotates slots on each refresh.
package ads

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/stwalsh4118/marquee/internal/logger"
)

// Slot is one ad creative that can be placed on the page
type Slot struct {
	ID        string `json:"id"`
	Placement string `json:"placement"`
	ImageURL  string `json:"image_url"`
	ClickURL  string `json:"click_url,omitempty"`
	AltText   string `json:"alt_text,omitempty"`
}

// catalogFile is the on-disk document
type catalogFile struct {
	Slots []Slot `json:"slots"`
}

// Catalog errors
var (
	ErrInvalidSlot = errors.New("invalid ad slot")
)

// Catalog holds the current set of slots, grouped by placement in file order
type Catalog struct {
	path string

	mu         sync.RWMutex
	placements []string
	slots      map[string][]Slot
}

// NewCatalog creates an empty catalog backed by path
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path, slots: make(map[string][]Slot)}
}

// Path returns the catalog file path
func (c *Catalog) Path() string {
	return c.path
}

// Load reads the catalog file. A missing file leaves the catalog empty and is
// not an error; an unreadable or invalid file keeps the previous contents.
func (c *Catalog) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Log.Info().Str("path", c.path).Msg("Ad catalog not found, no slots loaded")
			c.replace(nil)
			return nil
		}
		return fmt.Errorf("failed to read ad catalog: %w", err)
	}

	var doc catalogFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse ad catalog: %w", err)
	}
	for i, s := range doc.Slots {
		if s.ID == "" || s.Placement == "" || s.ImageURL == "" {
			return fmt.Errorf("%w: entry %d needs id, placement and image_url", ErrInvalidSlot, i)
		}
	}

	c.replace(doc.Slots)
	logger.Log.Info().Str("path", c.path).Int("slots", len(doc.Slots)).Msg("Ad catalog loaded")
	return nil
}

func (c *Catalog) replace(slots []Slot) {
	placements := make([]string, 0)
	byPlacement := make(map[string][]Slot)
	for _, s := range slots {
		if _, ok := byPlacement[s.Placement]; !ok {
			placements = append(placements, s.Placement)
		}
		byPlacement[s.Placement] = append(byPlacement[s.Placement], s)
	}

	c.mu.Lock()
	c.placements = placements
	c.slots = byPlacement
	c.mu.Unlock()
}

// Placements returns the placement names in file order
func (c *Catalog) Placements() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.placements...)
}

// Slots returns the slots for placement
func (c *Catalog) Slots(placement string) []Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Slot(nil), c.slots[placement]...)
}

// Len returns the total number of slots
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.slots {
		n += len(s)
	}
	return n
}
