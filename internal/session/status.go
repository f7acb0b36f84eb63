package session

import "time"

// AnchorStatus is the public view of one anchor.
type AnchorStatus struct {
	ID          string     `json:"id"`
	Type        int        `json:"type"`
	Name        string     `json:"name"`
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

// Status is an immutable snapshot of the session.
type Status struct {
	Mode             string         `json:"mode"`
	Initialized      bool           `json:"initialized"`
	MapID            string         `json:"map_id,omitempty"`
	ProduceType      int            `json:"produce_type"`
	Selected         string         `json:"selected,omitempty"`
	PlacementPending bool           `json:"placement_pending"`
	SaveInFlight     bool           `json:"save_in_flight"`
	SaveProgress     float64        `json:"save_progress"`
	KnownMaps        int            `json:"known_maps"`
	LastError        string         `json:"last_error,omitempty"`
	Anchors          []AnchorStatus `json:"anchors"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Status returns the snapshot published by the last Tick. It is safe to
// call from any goroutine.
func (s *Session) Status() Status {
	return *s.status.Load()
}

func (s *Session) publish() {
	st := &Status{
		Mode:             s.mode.String(),
		Initialized:      s.initialized,
		MapID:            s.mapID,
		ProduceType:      int(s.produceType),
		Selected:         s.selected,
		PlacementPending: s.pending != nil,
		SaveInFlight:     s.saveDone != nil,
		SaveProgress:     s.saveProgress,
		KnownMaps:        len(s.maps),
		LastError:        s.lastErr,
		Anchors:          make([]AnchorStatus, 0, s.list.Len()),
		UpdatedAt:        s.deps.Clock.Now(),
	}
	for _, a := range s.list.All() {
		r := a.Record()
		st.Anchors = append(st.Anchors, AnchorStatus{
			ID:          a.ID,
			Type:        r.Type,
			Name:        s.deps.Catalog.DisplayName(a.Type),
			Position:    r.Position,
			Orientation: r.Orientation,
		})
	}
	s.status.Store(st)
}
