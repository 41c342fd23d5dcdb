package domain

import "fmt"

// Status is the lifecycle state of a data request. Exactly one status is
// associated with a request at any time; transitions happen only through the
// workflow engine.
type Status string

const (
	StatusSubmitted                      Status = "SUBMITTED"
	StatusPreliminaryAccept              Status = "PRELIMINARY_ACCEPT"
	StatusPreliminaryReject              Status = "PRELIMINARY_REJECT"
	StatusPreliminaryResubmit            Status = "PRELIMINARY_RESUBMIT"
	StatusDatamanagerAccept              Status = "DATAMANAGER_ACCEPT"
	StatusDatamanagerReject              Status = "DATAMANAGER_REJECT"
	StatusDatamanagerResubmit            Status = "DATAMANAGER_RESUBMIT"
	StatusUnderReview                    Status = "UNDER_REVIEW"
	StatusRejectedAfterDatamanagerReview Status = "REJECTED_AFTER_DATAMANAGER_REVIEW"
	StatusResubmitAfterDatamanagerReview Status = "RESUBMIT_AFTER_DATAMANAGER_REVIEW"
	StatusReviewed                       Status = "REVIEWED"
	StatusApproved                       Status = "APPROVED"
	StatusRejected                       Status = "REJECTED"
	StatusResubmit                       Status = "RESUBMIT"
	StatusDTAReady                       Status = "DTA_READY"
	StatusDTASigned                      Status = "DTA_SIGNED"
	StatusDataReady                      Status = "DATA_READY"
)

var statuses = map[Status]bool{
	StatusSubmitted:                      true,
	StatusPreliminaryAccept:              true,
	StatusPreliminaryReject:              true,
	StatusPreliminaryResubmit:            true,
	StatusDatamanagerAccept:              true,
	StatusDatamanagerReject:              true,
	StatusDatamanagerResubmit:            true,
	StatusUnderReview:                    true,
	StatusRejectedAfterDatamanagerReview: true,
	StatusResubmitAfterDatamanagerReview: true,
	StatusReviewed:                       true,
	StatusApproved:                       true,
	StatusRejected:                       true,
	StatusResubmit:                       true,
	StatusDTAReady:                       true,
	StatusDTASigned:                      true,
	StatusDataReady:                      true,
}

// ParseStatus converts a stored attribute value into a Status, rejecting
// anything outside the closed set at the store boundary.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !statuses[st] {
		return "", fmt.Errorf("unknown request status %q", s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }
