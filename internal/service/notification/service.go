package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/lab-api/internal/email"
	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

type Service interface {
	// NotifyCritical alerts the configured recipients about a request that
	// was just flagged critical. Delivery failures are logged, not returned.
	NotifyCritical(ctx context.Context, req *model.LabTestRequest, test *model.LabTest)
}

type service struct {
	emailSvc   email.Service
	recipients []string
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(emailSvc email.Service, recipients []string, logger *logger.Logger, metrics *metrics.Metrics) Service {
	return &service{
		emailSvc:   emailSvc,
		recipients: recipients,
		logger:     logger,
		metrics:    metrics,
	}
}

func (s *service) NotifyCritical(ctx context.Context, req *model.LabTestRequest, test *model.LabTest) {
	s.metrics.CriticalFindings.Inc()

	if len(s.recipients) == 0 {
		s.logger.Warn("Critical finding with no alert recipients configured", "request_id", req.ID.String())
		return
	}

	subject, body := criticalMessage(req, test)
	if err := s.emailSvc.SendCustom(ctx, s.recipients, subject, body); err != nil {
		s.logger.Error(err, "Failed to send critical finding alert", "request_id", req.ID.String())
		return
	}
	s.logger.Info("Critical finding alert sent",
		"request_id", req.ID.String(),
		"recipients", len(s.recipients))
}

func criticalMessage(req *model.LabTestRequest, test *model.LabTest) (string, string) {
	testName := req.LabTestID.String()
	if test != nil {
		testName = test.Name
	}

	subject := fmt.Sprintf("[%s] Critical lab result: %s", req.Priority, testName)

	var b strings.Builder
	fmt.Fprintf(&b, "A lab test request was flagged critical.\n\n")
	fmt.Fprintf(&b, "Request:  %s\n", req.ID)
	fmt.Fprintf(&b, "Test:     %s\n", testName)
	fmt.Fprintf(&b, "Patient:  %s\n", req.PatientID)
	fmt.Fprintf(&b, "Doctor:   %s\n", req.DoctorID)
	fmt.Fprintf(&b, "Status:   %s\n", req.Status)
	fmt.Fprintf(&b, "Flagged:  %s\n", req.UpdatedAt.UTC().Format(time.RFC3339))
	if req.Findings != nil {
		fmt.Fprintf(&b, "\nFindings:\n%s\n", *req.Findings)
	}
	return subject, b.String()
}
