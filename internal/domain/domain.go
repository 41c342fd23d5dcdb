package domain

import "encoding/json"

// Fixed authorization groups. Membership is managed outside the workflow and
// queried through the groups service.
const (
	GroupBoard        = "datarequests-research-board-of-directors"
	GroupDatamanagers = "datarequests-research-datamanagers"
	GroupCommittee    = "datarequests-research-data-management-committee"
)

// ArtifactKind names the write-once JSON documents attached to a request.
type ArtifactKind string

const (
	ArtifactDatarequest       ArtifactKind = "datarequest.json"
	ArtifactPreliminaryReview ArtifactKind = "preliminary_review.json"
	ArtifactDatamanagerReview ArtifactKind = "datamanager_review.json"
	ArtifactAssignment        ArtifactKind = "assignment.json"
	ArtifactEvaluation        ArtifactKind = "evaluation.json"

	// DTA documents are uploaded out of band; the workflow only reacts to
	// their post-upload hooks.
	ArtifactDTA       ArtifactKind = "dta.pdf"
	ArtifactSignedDTA ArtifactKind = "signed_dta.pdf"
)

// ReviewArtifact returns the per-reviewer artifact name for a reviewer.
func ReviewArtifact(username string) ArtifactKind {
	return ArtifactKind("review_" + username + ".json")
}

type Request struct {
	ID                string          `json:"id"`
	Owner             string          `json:"owner"`
	Status            Status          `json:"status"`
	PreviousRequestID string          `json:"previous_request_id,omitempty"`
	Document          json.RawMessage `json:"document"`
	CreatedAt         string          `json:"created_at" format:"date-time"`
}

// RequestSummary is one row of the paginated browse listing.
type RequestSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CreateTime int64  `json:"create_time"`
	Status     string `json:"status"`
	Title      string `json:"title,omitempty"`
}

// Decision values, matched exactly against the submitted form.
const (
	DecisionPreliminaryAccept = "Accepted for data manager review"
	DecisionDatamanagerAccept = "Accepted"
	DecisionAssignmentAccept  = "Accepted for DMC review"
	DecisionEvaluationApprove = "Approved"
	DecisionRejected          = "Rejected"
	DecisionRejectedResubmit  = "Rejected (resubmit)"
)

type PreliminaryReviewForm struct {
	PreliminaryReview     string `json:"preliminary_review"`
	FeedbackForResearcher string `json:"feedback_for_researcher,omitempty"`
}

type DatamanagerReviewForm struct {
	DatamanagerReview  string `json:"datamanager_review"`
	DatamanagerRemarks string `json:"datamanager_remarks,omitempty"`
}

type AssignmentForm struct {
	Decision              string   `json:"decision"`
	AssignTo              []string `json:"assign_to,omitempty"`
	FeedbackForResearcher string   `json:"feedback_for_researcher,omitempty"`
}

type EvaluationForm struct {
	Evaluation            string `json:"evaluation"`
	FeedbackForResearcher string `json:"feedback_for_researcher,omitempty"`
}

// Researcher is the contact data pulled out of the request document for
// notification purposes.
type Researcher struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Institution string `json:"institution"`
	Department  string `json:"department"`
}

type requestDocument struct {
	Researchers struct {
		Contacts []Researcher `json:"contacts"`
	} `json:"researchers"`
	ResearchContext struct {
		Title string `json:"title"`
	} `json:"research_context"`
}

// ParseRequestDocument extracts the researcher contact and proposal title from
// a request document. Missing fields come back zero-valued; notification
// rendering tolerates that.
func ParseRequestDocument(doc json.RawMessage) (Researcher, string, error) {
	var parsed requestDocument
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return Researcher{}, "", err
	}
	var contact Researcher
	if len(parsed.Researchers.Contacts) > 0 {
		contact = parsed.Researchers.Contacts[0]
	}
	return contact, parsed.ResearchContext.Title, nil
}

type APIKey struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Actor     string `json:"actor"`
	Payload   string `json:"payload_json"`
}
