package models

// Reason is the closed set of tags the relevance pipeline can attach to a
// candidate. Rejection reasons end up on RejectedRecord; the remaining tags
// describe why a candidate was accepted.
type Reason string

const (
	ReasonRetweet              Reason = "retweet"
	ReasonReplyWithoutSignal   Reason = "reply-without-signal"
	ReasonInstitutionalAccount Reason = "institutional-account"
	ReasonOfficialAnnouncement Reason = "official-announcement"
	ReasonLocationMismatch     Reason = "location-mismatch"
	ReasonDuplicate            Reason = "duplicate"

	ReasonPersonalExpression Reason = "personal-expression"
	ReasonCrisisSignal       Reason = "crisis-signal"
	ReasonGenericRelevant    Reason = "generic-relevant"
)

// RejectionReasons lists every rejection reason in a stable order.
var RejectionReasons = []Reason{
	ReasonRetweet,
	ReasonReplyWithoutSignal,
	ReasonInstitutionalAccount,
	ReasonOfficialAnnouncement,
	ReasonLocationMismatch,
	ReasonDuplicate,
}

// AcceptanceTags lists the tags attached to accepted candidates.
var AcceptanceTags = []Reason{
	ReasonPersonalExpression,
	ReasonCrisisSignal,
	ReasonGenericRelevant,
}

// IsRejection reports whether r excludes a candidate.
func (r Reason) IsRejection() bool {
	for _, candidate := range RejectionReasons {
		if r == candidate {
			return true
		}
	}
	return false
}

// IsValid reports whether r is one of the known tags.
func (r Reason) IsValid() bool {
	if r.IsRejection() {
		return true
	}
	for _, candidate := range AcceptanceTags {
		if r == candidate {
			return true
		}
	}
	return false
}
