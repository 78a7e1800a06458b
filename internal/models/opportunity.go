package models

import "time"

type OpportunityState string

const (
	StateNew                OpportunityState = "new"
	StateContacted          OpportunityState = "contacted"
	StateNegotiation        OpportunityState = "negotiation"
	StateVisitScheduled     OpportunityState = "visit_scheduled"
	StateTestDriveScheduled OpportunityState = "test_drive_scheduled"
	StateProposalSent       OpportunityState = "proposal_sent"
	StateFinancing          OpportunityState = "financing"
	StateOfferSent          OpportunityState = "offer_sent"
	StateSold               OpportunityState = "sold"
	StateLost               OpportunityState = "lost"
)

// OpportunityStates lists every state in pipeline order.
var OpportunityStates = []OpportunityState{
	StateNew,
	StateContacted,
	StateNegotiation,
	StateVisitScheduled,
	StateTestDriveScheduled,
	StateProposalSent,
	StateFinancing,
	StateOfferSent,
	StateSold,
	StateLost,
}

func (s OpportunityState) Valid() bool {
	for _, st := range OpportunityStates {
		if st == s {
			return true
		}
	}
	return false
}

func (s OpportunityState) Terminal() bool {
	return s == StateSold || s == StateLost
}

// Opportunity is a tracked potential sale (a lead).
type Opportunity struct {
	ID                int64            `json:"id"`
	BuyerID           int64            `json:"buyer_id"`
	VehicleID         *int64           `json:"vehicle_id,omitempty"`
	State             OpportunityState `json:"state"`
	Priority          string           `json:"priority"`
	Notes             string           `json:"notes,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	LastInteractionAt time.Time        `json:"last_interaction_at"`
	RowVersion        int              `json:"row_version"`
}
