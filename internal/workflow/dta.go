package workflow

import (
	"context"

	"datarequest/internal/domain"
	"datarequest/internal/store"
)

// DtaUploaded is the post-upload hook for the Data Transfer Agreement. The
// data manager uploads dta.pdf out of band and then calls this to grant the
// request owner access and move the request to DTA_READY.
func (e Engine) DtaUploaded(ctx context.Context, requestID, actor string) error {
	unlock := e.lock(requestID)
	defer unlock()

	if err := e.requireMember(ctx, actor, domain.GroupDatamanagers); err != nil {
		return err
	}
	status, err := e.requireStatus(ctx, requestID, domain.StatusApproved)
	if err != nil {
		return err
	}
	owner, err := e.Repo.OwnerOf(ctx, requestID)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()
	if err := e.transition(ctx, tx, requestID, actor, "dta_uploaded", "", status, domain.StatusDTAReady); err != nil {
		return err
	}

	e.sideEffect("acl.grant", requestID, e.ACL.Grant(ctx, e.DB, owner, store.PermRead,
		e.Repo.ArtifactPath(requestID, domain.ArtifactDTA), false))

	researcher, _, err := e.researcherOf(ctx, requestID)
	e.sideEffect("mail.read_request", requestID, err)
	e.sideEffect("mail.dta_ready", requestID, e.Mail.DTAReady(ctx, researcher, requestID))
	return nil
}

// SignedDtaUploaded is the post-upload hook for the signed agreement,
// invoked by the request owner after uploading signed_dta.pdf.
func (e Engine) SignedDtaUploaded(ctx context.Context, requestID, actor string) error {
	unlock := e.lock(requestID)
	defer unlock()

	isOwner, err := e.Groups.IsOwner(ctx, requestID, actor)
	if err != nil {
		return err
	}
	if !isOwner {
		return domain.ErrPermission.New("user %s does not own request %s", actor, requestID)
	}
	status, err := e.requireStatus(ctx, requestID, domain.StatusDTAReady)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()
	if err := e.transition(ctx, tx, requestID, actor, "signed_dta_uploaded", "", status, domain.StatusDTASigned); err != nil {
		return err
	}

	e.sideEffect("acl.grant", requestID, e.ACL.Grant(ctx, e.DB, domain.GroupDatamanagers, store.PermRead,
		e.Repo.ArtifactPath(requestID, domain.ArtifactSignedDTA), false))

	emails, err := e.Groups.MemberEmails(ctx, domain.GroupDatamanagers)
	e.sideEffect("groups.datamanager_emails", requestID, err)
	e.sideEffect("mail.dta_signed", requestID, e.Mail.SignedDTA(ctx, emails, requestID))
	return nil
}

// DataReady marks the requested data as prepared and available for download.
func (e Engine) DataReady(ctx context.Context, requestID, actor string) error {
	unlock := e.lock(requestID)
	defer unlock()

	if err := e.requireMember(ctx, actor, domain.GroupDatamanagers); err != nil {
		return err
	}
	status, err := e.requireStatus(ctx, requestID, domain.StatusDTASigned)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()
	if err := e.transition(ctx, tx, requestID, actor, "data_ready", "", status, domain.StatusDataReady); err != nil {
		return err
	}

	researcher, _, err := e.researcherOf(ctx, requestID)
	e.sideEffect("mail.read_request", requestID, err)
	e.sideEffect("mail.data_ready", requestID, e.Mail.DataReady(ctx, researcher, requestID))
	return nil
}
