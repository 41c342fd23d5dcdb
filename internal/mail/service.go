package mail

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"datarequest/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Service renders the workflow notifications and hands them to a Sender.
type Service struct {
	Sender    Sender
	PortalURL string
}

type tmplData struct {
	PortalURL        string
	RequestID        string
	Researcher       domain.Researcher
	Title            string
	Date             string
	Feedback         string
	Remarks          string
	DatamanagerEmail string
}

func (s *Service) send(ctx context.Context, to []string, subject, tmpl string, data tmplData) error {
	if len(to) == 0 {
		return nil
	}
	data.PortalURL = strings.TrimSuffix(s.PortalURL, "/")
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, tmpl, data); err != nil {
		return domain.ErrNotification.Wrap(err)
	}
	return s.Sender.Send(ctx, &Message{To: to, Subject: subject, Body: b.String()})
}

func (s *Service) RequestSubmittedResearcher(ctx context.Context, researcher domain.Researcher, requestID string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: submitted", requestID),
		"researcher_submitted", tmplData{RequestID: requestID, Researcher: researcher})
}

func (s *Service) RequestSubmittedBoard(ctx context.Context, to []string, researcher domain.Researcher, requestID, title, date string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[bod member] Data request %s: submitted", requestID),
		"board_submitted", tmplData{RequestID: requestID, Researcher: researcher, Title: title, Date: date})
}

func (s *Service) PreliminaryAccepted(ctx context.Context, to []string, requestID string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[data manager] Data request %s: accepted for data manager review", requestID),
		"preliminary_accepted", tmplData{RequestID: requestID})
}

func (s *Service) PreliminaryResubmit(ctx context.Context, researcher domain.Researcher, requestID, feedback, datamanagerEmail string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: rejected (resubmit)", requestID),
		"preliminary_resubmit", tmplData{RequestID: requestID, Researcher: researcher, Feedback: feedback, DatamanagerEmail: datamanagerEmail})
}

func (s *Service) PreliminaryRejected(ctx context.Context, researcher domain.Researcher, requestID, feedback, datamanagerEmail string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: rejected", requestID),
		"preliminary_rejected", tmplData{RequestID: requestID, Researcher: researcher, Feedback: feedback, DatamanagerEmail: datamanagerEmail})
}

func (s *Service) DatamanagerAccepted(ctx context.Context, to []string, requestID string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[bod member] Data request %s: accepted by data manager", requestID),
		"datamanager_accepted", tmplData{RequestID: requestID})
}

func (s *Service) DatamanagerResubmit(ctx context.Context, to []string, requestID, remarks string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[bod member] Data request %s: rejected (resubmit) by data manager", requestID),
		"datamanager_resubmit", tmplData{RequestID: requestID, Remarks: remarks})
}

func (s *Service) DatamanagerRejected(ctx context.Context, to []string, requestID, remarks string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[bod member] Data request %s: rejected by data manager", requestID),
		"datamanager_rejected", tmplData{RequestID: requestID, Remarks: remarks})
}

func (s *Service) AssignmentAcceptedResearcher(ctx context.Context, researcher domain.Researcher, requestID string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: assigned", requestID),
		"assignment_accepted_researcher", tmplData{RequestID: requestID, Researcher: researcher})
}

func (s *Service) AssignmentAcceptedAssignee(ctx context.Context, to []string, requestID, title string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[assignee] Data request %s: assigned", requestID),
		"assignment_accepted_assignee", tmplData{RequestID: requestID, Title: title})
}

func (s *Service) AssignmentResubmit(ctx context.Context, researcher domain.Researcher, requestID, feedback string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: rejected (resubmit)", requestID),
		"assignment_resubmit", tmplData{RequestID: requestID, Researcher: researcher, Feedback: feedback})
}

func (s *Service) AssignmentRejected(ctx context.Context, researcher domain.Researcher, requestID, feedback string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: rejected", requestID),
		"assignment_rejected", tmplData{RequestID: requestID, Researcher: researcher, Feedback: feedback})
}

func (s *Service) ReviewedResearcher(ctx context.Context, researcher domain.Researcher, requestID string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: reviewed", requestID),
		"review_researcher", tmplData{RequestID: requestID, Researcher: researcher})
}

func (s *Service) ReviewedBoard(ctx context.Context, to []string, requestID string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[bod member] Data request %s: reviewed", requestID),
		"review_board", tmplData{RequestID: requestID})
}

func (s *Service) EvaluationApprovedResearcher(ctx context.Context, researcher domain.Researcher, requestID string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: approved", requestID),
		"evaluation_approved_researcher", tmplData{RequestID: requestID, Researcher: researcher})
}

func (s *Service) EvaluationApprovedDatamanager(ctx context.Context, to []string, requestID string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[data manager] Data request %s: approved", requestID),
		"evaluation_approved_datamanager", tmplData{RequestID: requestID})
}

func (s *Service) EvaluationResubmit(ctx context.Context, researcher domain.Researcher, requestID, feedback, datamanagerEmail string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: rejected (resubmit)", requestID),
		"evaluation_resubmit", tmplData{RequestID: requestID, Researcher: researcher, Feedback: feedback, DatamanagerEmail: datamanagerEmail})
}

func (s *Service) EvaluationRejected(ctx context.Context, researcher domain.Researcher, requestID, feedback, datamanagerEmail string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: rejected", requestID),
		"evaluation_rejected", tmplData{RequestID: requestID, Researcher: researcher, Feedback: feedback, DatamanagerEmail: datamanagerEmail})
}

func (s *Service) DTAReady(ctx context.Context, researcher domain.Researcher, requestID string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: DTA ready", requestID),
		"dta_ready", tmplData{RequestID: requestID, Researcher: researcher})
}

func (s *Service) SignedDTA(ctx context.Context, to []string, requestID string) error {
	return s.send(ctx, to,
		fmt.Sprintf("[data manager] Data request %s: DTA signed", requestID),
		"dta_signed", tmplData{RequestID: requestID})
}

func (s *Service) DataReady(ctx context.Context, researcher domain.Researcher, requestID string) error {
	return s.send(ctx, []string{researcher.Email},
		fmt.Sprintf("[researcher] Data request %s: data ready", requestID),
		"data_ready", tmplData{RequestID: requestID, Researcher: researcher})
}
