package explorer

import (
	"encoding/json"
	"time"

	"wagerchain/core/types"
)

// EventRecord is one committed node event. Digest is unique so replays of the
// same event are ignored.
type EventRecord struct {
	Sequence   uint64    `gorm:"primaryKey;autoIncrement:false" json:"sequence"`
	Type       string    `gorm:"size:64;index" json:"type"`
	BetID      string    `gorm:"size:42;index" json:"betId"`
	Digest     string    `gorm:"size:64;uniqueIndex" json:"digest"`
	Label      string    `gorm:"size:256" json:"label"`
	Attributes string    `gorm:"type:text" json:"attributes"`
	IndexedAt  time.Time `json:"indexedAt"`
}

// Event decodes the stored record back into the wire form.
func (r EventRecord) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &types.Event{Sequence: r.Sequence, Type: r.Type, Attributes: attrs}, nil
}

// BetRecord is the projection of a bet assembled from its lifecycle events.
type BetRecord struct {
	ID         string    `gorm:"primaryKey;size:42" json:"id"`
	Type       string    `gorm:"size:16" json:"type"`
	Token      string    `gorm:"size:16;index" json:"token"`
	Initiator  string    `gorm:"size:64;index" json:"initiator"`
	Arbiter    string    `gorm:"size:64;index" json:"arbiter"`
	Acceptor   string    `gorm:"size:64;index" json:"acceptor"`
	Winner     string    `gorm:"size:64" json:"winner"`
	Loser      string    `gorm:"size:64" json:"loser"`
	Stake      string    `gorm:"size:80" json:"stake"`
	Payout     string    `gorm:"size:80" json:"payout"`
	Custody    string    `gorm:"size:80" json:"custody"`
	Deadline   uint64    `json:"deadline,omitempty"`
	Status     string    `gorm:"size:16;index" json:"status"`
	CreatedSeq uint64    `gorm:"index" json:"createdSeq"`
	UpdatedSeq uint64    `json:"updatedSeq"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
