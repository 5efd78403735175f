package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/transport"
)

// FilingOps is the lifecycle surface the admin commands need.
type FilingOps interface {
	Stats(ctx context.Context) (map[filing.Status]int, error)
	EnqueueReport(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error)
	RetryReport(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error)
}

type Pinger interface {
	Ping(ctx context.Context) transport.PingResult
}

const unauthorizedReply = "Error: you are not allowed to run this command."

// AdminHandlers answers the filing admin commands. Replies are plain strings so
// each command can be exercised without a live bot.
type AdminHandlers struct {
	ops        FilingOps
	pinger     Pinger
	adminID    int64
	logger     *logrus.Entry
	cmdTimeout time.Duration
}

func NewAdminHandlers(ops FilingOps, pinger Pinger, adminTelegramID int64, baseLogger *logrus.Entry) *AdminHandlers {
	return &AdminHandlers{
		ops:        ops,
		pinger:     pinger,
		adminID:    adminTelegramID,
		logger:     baseLogger.WithField("handler_group", "filing_admin"),
		cmdTimeout: time.Minute,
	}
}

type command func(ctx context.Context, args []string) string

// RegisterAdminHandlers registers handlers for admin commands on b.
func (h *AdminHandlers) RegisterAdminHandlers(b *telebot.Bot) {
	b.Handle("/filing_stats", h.wrap("/filing_stats", h.stats))
	b.Handle("/filing_ping", h.wrap("/filing_ping", h.ping))
	b.Handle("/filing_enqueue", h.wrap("/filing_enqueue", h.enqueue))
	b.Handle("/filing_retry", h.wrap("/filing_retry", h.retry))
}

func (h *AdminHandlers) wrap(name string, cmd command) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		senderID := c.Sender().ID
		handlerLogger := h.logger.WithFields(logrus.Fields{
			"handler":   name,
			"sender_id": senderID,
		})
		handlerLogger.Info("Command received")

		if senderID != h.adminID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedReply)
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.cmdTimeout)
		defer cancel()
		return c.Send(cmd(ctx, c.Args()), &telebot.SendOptions{DisableWebPagePreview: true})
	}
}

func (h *AdminHandlers) stats(ctx context.Context, _ []string) string {
	counts, err := h.ops.Stats(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get filing stats")
		return fmt.Sprintf("Failed to get filing stats: %s", err.Error())
	}

	var response strings.Builder
	response.WriteString("--- Filing submissions ---\n")
	total := 0
	for _, st := range filing.AllStatuses {
		fmt.Fprintf(&response, "%s: %d\n", st, counts[st])
		total += counts[st]
	}
	fmt.Fprintf(&response, "total: %d", total)
	return response.String()
}

func (h *AdminHandlers) ping(ctx context.Context, _ []string) string {
	res := h.pinger.Ping(ctx)
	if !res.OK {
		return fmt.Sprintf("SFTP %s unreachable (%s): %s", res.Host, res.ErrorKind, res.Error)
	}
	var response strings.Builder
	fmt.Fprintf(&response, "SFTP %s OK in %d ms\n", res.Host, res.LatencyMS)
	for _, dir := range []transport.DirListing{res.Submissions, res.Acks} {
		if dir.Error != "" {
			fmt.Fprintf(&response, "%s: error %s\n", dir.Path, dir.Error)
			continue
		}
		fmt.Fprintf(&response, "%s: %d files", dir.Path, dir.Count)
		if len(dir.Sample) > 0 {
			fmt.Fprintf(&response, " (%s)", strings.Join(dir.Sample, ", "))
		}
		response.WriteString("\n")
	}
	return strings.TrimRight(response.String(), "\n")
}

func (h *AdminHandlers) enqueue(ctx context.Context, args []string) string {
	reportID, reply := parseReportID("/filing_enqueue", args)
	if reply != "" {
		return reply
	}
	sub, err := h.ops.EnqueueReport(ctx, reportID)
	return h.describe("enqueue", reportID, sub, err)
}

func (h *AdminHandlers) retry(ctx context.Context, args []string) string {
	reportID, reply := parseReportID("/filing_retry", args)
	if reply != "" {
		return reply
	}
	sub, err := h.ops.RetryReport(ctx, reportID)
	return h.describe("retry", reportID, sub, err)
}

func (h *AdminHandlers) describe(op string, reportID uuid.UUID, sub *filing.Submission, err error) string {
	logCtx := h.logger.WithFields(logrus.Fields{"op": op, "report_id": reportID})
	switch {
	case err == nil:
		logCtx.WithField("submission_id", sub.ID).Info("Filing re-queued from Telegram")
		return fmt.Sprintf("Report %s queued for filing (attempts so far: %d).", reportID, sub.Attempts)
	case errors.Is(err, filing.ErrSubmissionNotFound):
		return fmt.Sprintf("No filing submission exists for report %s.", reportID)
	case errors.Is(err, filing.ErrInvalidTransition):
		logCtx.WithError(err).Warn("Rejected state change")
		if sub != nil {
			return fmt.Sprintf("Cannot %s report %s: it is %s.", op, reportID, sub.Status)
		}
		return fmt.Sprintf("Cannot %s report %s: %s", op, reportID, err.Error())
	default:
		logCtx.WithError(err).Error("Filing command failed")
		return fmt.Sprintf("Failed to %s report %s: %s", op, reportID, err.Error())
	}
}

func parseReportID(cmd string, args []string) (uuid.UUID, string) {
	if len(args) != 1 {
		return uuid.Nil, fmt.Sprintf("Invalid command format. Use: %s <report_id>", cmd)
	}
	id, err := uuid.Parse(strings.TrimSpace(args[0]))
	if err != nil {
		return uuid.Nil, "Error: report_id must be a UUID."
	}
	return id, ""
}
