package mail

import (
	"context"
	"strings"
	"testing"

	"datarequest/internal/domain"
)

func newTestService() (*Service, *LogSender) {
	sender := &LogSender{}
	return &Service{Sender: sender, PortalURL: "https://portal.example/"}, sender
}

func TestSubmittedMailRendering(t *testing.T) {
	svc, sender := newTestService()
	ctx := context.Background()
	researcher := domain.Researcher{Name: "Ada", Email: "ada@uni.example"}

	if err := svc.RequestSubmittedResearcher(ctx, researcher, "req-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d", len(sent))
	}
	msg := sent[0]
	if msg.To[0] != "ada@uni.example" {
		t.Fatalf("to = %v", msg.To)
	}
	if msg.Subject != "[researcher] Data request req-1: submitted" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Ada") {
		t.Fatalf("body = %q", msg.Body)
	}
	// the trailing slash on the portal URL must not double up in links
	if strings.Contains(msg.Body, "example//") {
		t.Fatalf("body = %q", msg.Body)
	}
}

func TestFeedbackReachesRejectionMail(t *testing.T) {
	svc, sender := newTestService()
	researcher := domain.Researcher{Name: "Ada", Email: "ada@uni.example"}

	err := svc.PreliminaryRejected(context.Background(), researcher, "req-1", "scope too broad", "dm@example.org")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sender.Sent()[0]
	if !strings.Contains(msg.Body, "scope too broad") {
		t.Fatalf("feedback missing from body: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "dm@example.org") {
		t.Fatalf("contact address missing from body: %q", msg.Body)
	}
}

func TestEmptyRecipientsSkipsDelivery(t *testing.T) {
	svc, sender := newTestService()
	if err := svc.PreliminaryAccepted(context.Background(), nil, "req-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.Sent()) != 0 {
		t.Fatalf("sent = %v, want none for empty recipient list", sender.Sent())
	}
}

func TestEveryTemplateRenders(t *testing.T) {
	svc, sender := newTestService()
	ctx := context.Background()
	researcher := domain.Researcher{Name: "Ada", Email: "ada@uni.example"}
	to := []string{"x@example.org"}

	calls := []func() error{
		func() error { return svc.RequestSubmittedResearcher(ctx, researcher, "r") },
		func() error { return svc.RequestSubmittedBoard(ctx, to, researcher, "r", "Title", "2024-03-01") },
		func() error { return svc.PreliminaryAccepted(ctx, to, "r") },
		func() error { return svc.PreliminaryResubmit(ctx, researcher, "r", "fb", "dm@x") },
		func() error { return svc.PreliminaryRejected(ctx, researcher, "r", "fb", "dm@x") },
		func() error { return svc.DatamanagerAccepted(ctx, to, "r") },
		func() error { return svc.DatamanagerResubmit(ctx, to, "r", "remarks") },
		func() error { return svc.DatamanagerRejected(ctx, to, "r", "remarks") },
		func() error { return svc.AssignmentAcceptedResearcher(ctx, researcher, "r") },
		func() error { return svc.AssignmentAcceptedAssignee(ctx, to, "r", "Title") },
		func() error { return svc.AssignmentResubmit(ctx, researcher, "r", "fb") },
		func() error { return svc.AssignmentRejected(ctx, researcher, "r", "fb") },
		func() error { return svc.ReviewedResearcher(ctx, researcher, "r") },
		func() error { return svc.ReviewedBoard(ctx, to, "r") },
		func() error { return svc.EvaluationApprovedResearcher(ctx, researcher, "r") },
		func() error { return svc.EvaluationApprovedDatamanager(ctx, to, "r") },
		func() error { return svc.EvaluationResubmit(ctx, researcher, "r", "fb", "dm@x") },
		func() error { return svc.EvaluationRejected(ctx, researcher, "r", "fb", "dm@x") },
		func() error { return svc.DTAReady(ctx, researcher, "r") },
		func() error { return svc.SignedDTA(ctx, to, "r") },
		func() error { return svc.DataReady(ctx, researcher, "r") },
	}
	for i, call := range calls {
		if err := call(); err != nil {
			t.Fatalf("notification %d: %v", i, err)
		}
	}
	if len(sender.Sent()) != len(calls) {
		t.Fatalf("sent = %d, want %d", len(sender.Sent()), len(calls))
	}
	for _, msg := range sender.Sent() {
		if strings.TrimSpace(msg.Body) == "" {
			t.Fatalf("empty body for %q", msg.Subject)
		}
	}
}
