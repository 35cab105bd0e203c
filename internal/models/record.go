package models

import (
	"fmt"
	"strings"
	"time"
)

// Engagement metric names used in CandidateRecord.Engagement.
const (
	MetricLikes   = "likes"
	MetricShares  = "shares"
	MetricReplies = "replies"
	MetricQuotes  = "quotes"
)

// EngagementMetrics is the fixed metric set of a stored record. The CSV output
// has one column per metric.
var EngagementMetrics = []string{MetricLikes, MetricShares, MetricReplies, MetricQuotes}

// NormalizeEngagement returns a map holding exactly EngagementMetrics. Missing
// metrics are zero and unknown keys are dropped.
func NormalizeEngagement(m map[string]int) map[string]int {
	out := make(map[string]int, len(EngagementMetrics))
	for _, k := range EngagementMetrics {
		out[k] = m[k]
	}
	return out
}

const (
	permalinkHost  = "https://x.com"
	unknownAuthor  = "i"
	noLocationText = "No disponible"
)

// Author describes the account that published a candidate.
type Author struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Location    string `json:"location,omitempty"`
}

// CandidateRecord is one fetched item before filtering. Two candidates with the
// same ID are the same logical item regardless of drift in the other fields.
type CandidateRecord struct {
	ID          string         `json:"id"`
	Author      Author         `json:"author"`
	Text        string         `json:"text"`
	PublishedAt time.Time      `json:"published_at"`
	Engagement  map[string]int `json:"engagement,omitempty"` // keys from EngagementMetrics
	SourceQuery string         `json:"source_query"`
	Permalink   string         `json:"permalink"`
	IsRetweet   bool           `json:"is_retweet,omitempty"`
	IsReply     bool           `json:"is_reply,omitempty"`
}

// AcceptedRecord is a candidate that passed the relevance filter and the
// location gate. It is built once by Accept and never mutated afterwards.
type AcceptedRecord struct {
	CandidateRecord
	Category             Category `json:"category"`
	IsPersonalExpression bool     `json:"is_personal_expression"`
	LocationMatched      bool     `json:"location_matched"`
}

// RejectedRecord is a candidate excluded by the filter or the location gate.
type RejectedRecord struct {
	CandidateRecord
	Reason Reason `json:"rejection_reason"`
}

// Accept derives an AcceptedRecord from the candidate.
func Accept(c CandidateRecord, category Category, tag Reason) AcceptedRecord {
	return AcceptedRecord{
		CandidateRecord:      c.clone(),
		Category:             category,
		IsPersonalExpression: tag == ReasonPersonalExpression,
		LocationMatched:      true,
	}
}

// Reject derives a RejectedRecord from the candidate. It returns an error when
// the reason is not a rejection reason.
func Reject(c CandidateRecord, reason Reason) (RejectedRecord, error) {
	if !reason.IsRejection() {
		return RejectedRecord{}, fmt.Errorf("%q is not a rejection reason", reason)
	}
	return RejectedRecord{CandidateRecord: c.clone(), Reason: reason}, nil
}

// Likes returns the like count, zero when unknown.
func (c CandidateRecord) Likes() int {
	return c.Engagement[MetricLikes]
}

// Shares returns the reshare count, zero when unknown.
func (c CandidateRecord) Shares() int {
	return c.Engagement[MetricShares]
}

// LocationOrDefault returns the author location or a placeholder when empty.
func (c CandidateRecord) LocationOrDefault() string {
	if strings.TrimSpace(c.Author.Location) == "" {
		return noLocationText
	}
	return c.Author.Location
}

// BuildPermalink returns the canonical status URL for a handle and ID.
func BuildPermalink(handle, id string) string {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		handle = unknownAuthor
	}
	return fmt.Sprintf("%s/%s/status/%s", permalinkHost, handle, id)
}

func (c CandidateRecord) clone() CandidateRecord {
	out := c
	if c.Engagement != nil {
		out.Engagement = make(map[string]int, len(c.Engagement))
		for k, v := range c.Engagement {
			out.Engagement[k] = v
		}
	}
	return out
}
