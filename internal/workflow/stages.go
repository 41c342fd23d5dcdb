package workflow

import (
	"context"
	"database/sql"
	"encoding/json"

	"datarequest/internal/domain"
	"datarequest/internal/events"
)

// artifactOnly commits the stage artifact even though the decision inside it
// is unusable, then reports InvalidData. The artifact records what the
// reviewer actually submitted; the status does not move.
func (e Engine) artifactOnly(ctx context.Context, tx *sql.Tx, requestID, stage, actor string) error {
	if err := e.Events.Append(ctx, tx, "request.artifact.written", requestID, actor, events.EventPayload{
		"stage": stage,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	return domain.ErrInvalidData.New("invalid decision value in %s form", stage)
}

// transition writes the new status and its audit event and commits.
func (e Engine) transition(ctx context.Context, tx *sql.Tx, requestID, actor, stage, decision string, from, to domain.Status) error {
	if err := e.Repo.SetStatus(ctx, tx, requestID, to); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "request.status.changed", requestID, actor, events.EventPayload{
		"stage":    stage,
		"decision": decision,
		"from":     from.String(),
		"to":       to.String(),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	return nil
}

// PreliminaryReview records the Board of Directors' first pass over a
// submitted request.
func (e Engine) PreliminaryReview(ctx context.Context, requestID, actor string, doc json.RawMessage) error {
	unlock := e.lock(requestID)
	defer unlock()

	if err := e.requireMember(ctx, actor, domain.GroupBoard); err != nil {
		return err
	}
	status, err := e.requireStatus(ctx, requestID, domain.StatusSubmitted)
	if err != nil {
		return err
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()

	if err := e.Repo.WriteArtifact(ctx, tx, requestID, domain.ArtifactPreliminaryReview, doc, actor, now); err != nil {
		return err
	}

	var form domain.PreliminaryReviewForm
	if err := parseForm(doc, &form); err != nil {
		return err
	}
	var next domain.Status
	switch form.PreliminaryReview {
	case domain.DecisionPreliminaryAccept:
		next = domain.StatusPreliminaryAccept
	case domain.DecisionRejected:
		next = domain.StatusPreliminaryReject
	case domain.DecisionRejectedResubmit:
		next = domain.StatusPreliminaryResubmit
	default:
		err := e.artifactOnly(ctx, tx, requestID, "preliminary_review", actor)
		e.grantArtifactRead(ctx, requestID, domain.ArtifactPreliminaryReview,
			domain.GroupBoard, domain.GroupDatamanagers, domain.GroupCommittee)
		return err
	}

	if err := e.transition(ctx, tx, requestID, actor, "preliminary_review", form.PreliminaryReview, status, next); err != nil {
		return err
	}

	e.grantArtifactRead(ctx, requestID, domain.ArtifactPreliminaryReview,
		domain.GroupBoard, domain.GroupDatamanagers, domain.GroupCommittee)

	researcher, _, err := e.researcherOf(ctx, requestID)
	e.sideEffect("mail.read_request", requestID, err)
	switch next {
	case domain.StatusPreliminaryAccept:
		emails, err := e.Groups.MemberEmails(ctx, domain.GroupDatamanagers)
		e.sideEffect("groups.datamanager_emails", requestID, err)
		e.sideEffect("mail.preliminary_accepted", requestID,
			e.Mail.PreliminaryAccepted(ctx, emails, requestID))
	case domain.StatusPreliminaryResubmit:
		e.sideEffect("mail.preliminary_resubmit", requestID,
			e.Mail.PreliminaryResubmit(ctx, researcher, requestID, form.FeedbackForResearcher, e.datamanagerEmail(ctx)))
	case domain.StatusPreliminaryReject:
		e.sideEffect("mail.preliminary_rejected", requestID,
			e.Mail.PreliminaryRejected(ctx, researcher, requestID, form.FeedbackForResearcher, e.datamanagerEmail(ctx)))
	}
	return nil
}

// DataManagerReview records the data manager's advisory review.
func (e Engine) DataManagerReview(ctx context.Context, requestID, actor string, doc json.RawMessage) error {
	unlock := e.lock(requestID)
	defer unlock()

	if err := e.requireMember(ctx, actor, domain.GroupDatamanagers); err != nil {
		return err
	}
	status, err := e.requireStatus(ctx, requestID, domain.StatusPreliminaryAccept)
	if err != nil {
		return err
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()

	if err := e.Repo.WriteArtifact(ctx, tx, requestID, domain.ArtifactDatamanagerReview, doc, actor, now); err != nil {
		return err
	}

	var form domain.DatamanagerReviewForm
	if err := parseForm(doc, &form); err != nil {
		return err
	}
	var next domain.Status
	switch form.DatamanagerReview {
	case domain.DecisionDatamanagerAccept:
		next = domain.StatusDatamanagerAccept
	case domain.DecisionRejected:
		next = domain.StatusDatamanagerReject
	case domain.DecisionRejectedResubmit:
		next = domain.StatusDatamanagerResubmit
	default:
		err := e.artifactOnly(ctx, tx, requestID, "datamanager_review", actor)
		e.grantArtifactRead(ctx, requestID, domain.ArtifactDatamanagerReview,
			domain.GroupBoard, domain.GroupDatamanagers, domain.GroupCommittee)
		return err
	}

	if err := e.transition(ctx, tx, requestID, actor, "datamanager_review", form.DatamanagerReview, status, next); err != nil {
		return err
	}

	e.grantArtifactRead(ctx, requestID, domain.ArtifactDatamanagerReview,
		domain.GroupBoard, domain.GroupDatamanagers, domain.GroupCommittee)

	boardEmails, err := e.Groups.MemberEmails(ctx, domain.GroupBoard)
	e.sideEffect("groups.board_emails", requestID, err)
	switch next {
	case domain.StatusDatamanagerAccept:
		e.sideEffect("mail.datamanager_accepted", requestID,
			e.Mail.DatamanagerAccepted(ctx, boardEmails, requestID))
	case domain.StatusDatamanagerResubmit:
		e.sideEffect("mail.datamanager_resubmit", requestID,
			e.Mail.DatamanagerResubmit(ctx, boardEmails, requestID, form.DatamanagerRemarks))
	case domain.StatusDatamanagerReject:
		e.sideEffect("mail.datamanager_rejected", requestID,
			e.Mail.DatamanagerRejected(ctx, boardEmails, requestID, form.DatamanagerRemarks))
	}
	return nil
}

// Assignment either assigns the request to one or more committee reviewers or
// rejects it after considering the data manager's advisory review.
func (e Engine) Assignment(ctx context.Context, requestID, actor string, doc json.RawMessage) error {
	unlock := e.lock(requestID)
	defer unlock()

	if err := e.requireMember(ctx, actor, domain.GroupBoard); err != nil {
		return err
	}
	status, err := e.requireStatus(ctx, requestID,
		domain.StatusDatamanagerAccept, domain.StatusDatamanagerReject, domain.StatusDatamanagerResubmit)
	if err != nil {
		return err
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()

	if err := e.Repo.WriteArtifact(ctx, tx, requestID, domain.ArtifactAssignment, doc, actor, now); err != nil {
		return err
	}

	var form domain.AssignmentForm
	if err := parseForm(doc, &form); err != nil {
		return err
	}
	var next domain.Status
	switch form.Decision {
	case domain.DecisionAssignmentAccept:
		next = domain.StatusUnderReview
	case domain.DecisionRejected:
		next = domain.StatusRejectedAfterDatamanagerReview
	case domain.DecisionRejectedResubmit:
		next = domain.StatusResubmitAfterDatamanagerReview
	default:
		err := e.artifactOnly(ctx, tx, requestID, "assignment", actor)
		e.grantArtifactRead(ctx, requestID, domain.ArtifactAssignment,
			domain.GroupBoard, domain.GroupDatamanagers, domain.GroupCommittee)
		return err
	}

	if next == domain.StatusUnderReview {
		if err := e.assign(ctx, tx, requestID, actor, status, form.AssignTo); err != nil {
			return err
		}
	}
	if err := e.transition(ctx, tx, requestID, actor, "assignment", form.Decision, status, next); err != nil {
		return err
	}

	e.grantArtifactRead(ctx, requestID, domain.ArtifactAssignment,
		domain.GroupBoard, domain.GroupDatamanagers, domain.GroupCommittee)

	researcher, title, err := e.researcherOf(ctx, requestID)
	e.sideEffect("mail.read_request", requestID, err)
	switch next {
	case domain.StatusUnderReview:
		e.sideEffect("mail.assignment_accepted_researcher", requestID,
			e.Mail.AssignmentAcceptedResearcher(ctx, researcher, requestID))
		emails, err := e.assigneeEmails(ctx, form.AssignTo)
		e.sideEffect("groups.assignee_emails", requestID, err)
		e.sideEffect("mail.assignment_accepted_assignee", requestID,
			e.Mail.AssignmentAcceptedAssignee(ctx, emails, requestID, title))
	case domain.StatusResubmitAfterDatamanagerReview:
		e.sideEffect("mail.assignment_resubmit", requestID,
			e.Mail.AssignmentResubmit(ctx, researcher, requestID, form.FeedbackForResearcher))
	case domain.StatusRejectedAfterDatamanagerReview:
		e.sideEffect("mail.assignment_rejected", requestID,
			e.Mail.AssignmentRejected(ctx, researcher, requestID, form.FeedbackForResearcher))
	}
	return nil
}

// Review records one assigned reviewer's verdict and removes them from the
// assigned set. The last removal flips the request to REVIEWED.
func (e Engine) Review(ctx context.Context, requestID, actor string, doc json.RawMessage) error {
	unlock := e.lock(requestID)
	defer unlock()

	assigned, err := e.Groups.IsAssignedReviewer(ctx, requestID, actor)
	if err != nil {
		return err
	}
	if !assigned {
		return domain.ErrPermission.New("user %s is not assigned as a reviewer to request %s", actor, requestID)
	}
	status, err := e.requireStatus(ctx, requestID, domain.StatusUnderReview)
	if err != nil {
		return err
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()

	artifact := domain.ReviewArtifact(actor)
	if err := e.Repo.WriteArtifact(ctx, tx, requestID, artifact, doc, actor, now); err != nil {
		return err
	}
	remaining, err := e.Repo.RemoveReviewer(ctx, tx, requestID, actor)
	if err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "request.reviewer.done", requestID, actor, events.EventPayload{
		"remaining": remaining,
	}); err != nil {
		return err
	}
	reviewed := remaining == 0
	if reviewed {
		if err := e.Repo.SetStatus(ctx, tx, requestID, domain.StatusReviewed); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "request.status.changed", requestID, actor, events.EventPayload{
			"stage": "review",
			"from":  status.String(),
			"to":    domain.StatusReviewed.String(),
		}); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ErrStorage.Wrap(err)
	}

	// Individual reviews are visible to the board only.
	e.grantArtifactRead(ctx, requestID, artifact, domain.GroupBoard)

	if reviewed {
		researcher, _, err := e.researcherOf(ctx, requestID)
		e.sideEffect("mail.read_request", requestID, err)
		e.sideEffect("mail.reviewed_researcher", requestID,
			e.Mail.ReviewedResearcher(ctx, researcher, requestID))
		boardEmails, err := e.Groups.MemberEmails(ctx, domain.GroupBoard)
		e.sideEffect("groups.board_emails", requestID, err)
		e.sideEffect("mail.reviewed_board", requestID,
			e.Mail.ReviewedBoard(ctx, boardEmails, requestID))
	}
	return nil
}

// Evaluation records the board's final verdict on a fully reviewed request.
func (e Engine) Evaluation(ctx context.Context, requestID, actor string, doc json.RawMessage) error {
	unlock := e.lock(requestID)
	defer unlock()

	if err := e.requireMember(ctx, actor, domain.GroupBoard); err != nil {
		return err
	}
	status, err := e.requireStatus(ctx, requestID, domain.StatusReviewed)
	if err != nil {
		return err
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()

	if err := e.Repo.WriteArtifact(ctx, tx, requestID, domain.ArtifactEvaluation, doc, actor, now); err != nil {
		return err
	}

	var form domain.EvaluationForm
	if err := parseForm(doc, &form); err != nil {
		return err
	}
	var next domain.Status
	switch form.Evaluation {
	case domain.DecisionEvaluationApprove:
		next = domain.StatusApproved
	case domain.DecisionRejected:
		next = domain.StatusRejected
	case domain.DecisionRejectedResubmit:
		next = domain.StatusResubmit
	default:
		return e.artifactOnly(ctx, tx, requestID, "evaluation", actor)
	}

	if err := e.transition(ctx, tx, requestID, actor, "evaluation", form.Evaluation, status, next); err != nil {
		return err
	}

	researcher, _, err := e.researcherOf(ctx, requestID)
	e.sideEffect("mail.read_request", requestID, err)
	switch next {
	case domain.StatusApproved:
		e.sideEffect("mail.evaluation_approved_researcher", requestID,
			e.Mail.EvaluationApprovedResearcher(ctx, researcher, requestID))
		emails, err := e.Groups.MemberEmails(ctx, domain.GroupDatamanagers)
		e.sideEffect("groups.datamanager_emails", requestID, err)
		e.sideEffect("mail.evaluation_approved_datamanager", requestID,
			e.Mail.EvaluationApprovedDatamanager(ctx, emails, requestID))
	case domain.StatusResubmit:
		e.sideEffect("mail.evaluation_resubmit", requestID,
			e.Mail.EvaluationResubmit(ctx, researcher, requestID, form.FeedbackForResearcher, e.datamanagerEmail(ctx)))
	case domain.StatusRejected:
		e.sideEffect("mail.evaluation_rejected", requestID,
			e.Mail.EvaluationRejected(ctx, researcher, requestID, form.FeedbackForResearcher, e.datamanagerEmail(ctx)))
	}
	return nil
}
