// filingctl runs one-off filing operations against the same storage and
// SFTP endpoint as the filer service: connectivity checks, manual batch runs,
// retries and demo outcomes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/infra/bootstrap"
	"rre_filing_agent/internal/infra/config"
	"rre_filing_agent/internal/infra/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// action runs a parsed command against a wired application.
type action func(ctx context.Context, app *bootstrap.App, out io.Writer) error

type command struct {
	summary string
	// setup registers the command's flags and returns its action.
	setup func(fs *pflag.FlagSet) action
}

var commands = map[string]command{
	"ping": {
		summary: "check SFTP connectivity and sample both remote directories",
		setup: func(*pflag.FlagSet) action {
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				res := app.Runner.Ping(ctx)
				if err := writeJSON(out, res); err != nil {
					return err
				}
				if !res.OK {
					return fmt.Errorf("transport check failed: %s", res.ErrorKind)
				}
				return nil
			}
		},
	},
	"stats": {
		summary: "print submission counts by status",
		setup: func(*pflag.FlagSet) action {
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				counts, err := app.Manager.Stats(ctx)
				if err != nil {
					return err
				}
				return writeJSON(out, counts)
			}
		},
	},
	"submit-pending": {
		summary: "push every claimable queued submission once",
		setup: func(*pflag.FlagSet) action {
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				report, err := app.Runner.SubmitPending(ctx)
				if report != nil {
					_ = writeJSON(out, report)
				}
				return err
			}
		},
	},
	"poll-pending": {
		summary: "check every claimable submitted filing for responses once",
		setup: func(*pflag.FlagSet) action {
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				report, err := app.Runner.PollPending(ctx)
				if report != nil {
					_ = writeJSON(out, report)
				}
				return err
			}
		},
	},
	"show": {
		summary: "print the filing submission of a report",
		setup: func(fs *pflag.FlagSet) action {
			reportFlag := fs.String("report", "", "report ID (UUID)")
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				reportID, err := parseReport(*reportFlag)
				if err != nil {
					return err
				}
				sub, err := app.Manager.Lookup(ctx, reportID)
				if err != nil {
					return err
				}
				return writeJSON(out, summarize(sub))
			}
		},
	},
	"document": {
		summary: "print the document stored with the last push of a report",
		setup: func(fs *pflag.FlagSet) action {
			reportFlag := fs.String("report", "", "report ID (UUID)")
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				reportID, err := parseReport(*reportFlag)
				if err != nil {
					return err
				}
				sub, err := app.Manager.Lookup(ctx, reportID)
				if err != nil {
					return err
				}
				doc, err := app.Manager.Snapshot(sub)
				if err != nil {
					return err
				}
				_, err = out.Write(doc)
				return err
			}
		},
	},
	"enqueue": {
		summary: "queue a report for filing",
		setup: func(fs *pflag.FlagSet) action {
			reportFlag := fs.String("report", "", "report ID (UUID)")
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				reportID, err := parseReport(*reportFlag)
				if err != nil {
					return err
				}
				sub, err := app.Manager.EnqueueReport(ctx, reportID)
				if err != nil {
					return err
				}
				return writeJSON(out, summarize(sub))
			}
		},
	},
	"retry": {
		summary: "re-queue a rejected or needs-review filing",
		setup: func(fs *pflag.FlagSet) action {
			reportFlag := fs.String("report", "", "report ID (UUID)")
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				reportID, err := parseReport(*reportFlag)
				if err != nil {
					return err
				}
				sub, err := app.Manager.RetryReport(ctx, reportID)
				if err != nil {
					return err
				}
				return writeJSON(out, summarize(sub))
			}
		},
	},
	"demo": {
		summary: "force a terminal outcome without contacting the receiving system (DEMO_MODE only)",
		setup: func(fs *pflag.FlagSet) action {
			reportFlag := fs.String("report", "", "report ID (UUID)")
			outcome := fs.String("outcome", "", "accept, reject or needs_review")
			code := fs.String("code", "", "rejection code for --outcome=reject")
			message := fs.String("message", "", "rejection message or review note")
			return func(ctx context.Context, app *bootstrap.App, out io.Writer) error {
				reportID, err := parseReport(*reportFlag)
				if err != nil {
					return err
				}
				if *outcome == "" {
					return fmt.Errorf("--outcome is required")
				}
				sub, err := app.Manager.DemoOverrideReport(ctx, reportID, filing.DemoOutcome(*outcome), *code, *message)
				if err != nil {
					return err
				}
				return writeJSON(out, summarize(sub))
			}
		},
	},
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	fs := pflag.NewFlagSet("filingctl "+args[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	act := cmd.setup(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	log := logger.InitTo(stderr, cfg, "filingctl")

	app, err := bootstrap.New(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer app.Close()
	return act(ctx, app, stdout)
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Usage: filingctl <command> [flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-15s %s\n", name, commands[name].summary)
	}
	b.WriteString("\nConfiguration is read from the environment and .env, as for the filer service.\n")
	fmt.Fprint(w, b.String())
}

func parseReport(v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.Nil, fmt.Errorf("--report is required")
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--report must be a UUID: %w", err)
	}
	return id, nil
}

type submissionSummary struct {
	ReportID         string `json:"report_id"`
	Status           string `json:"status"`
	Attempts         int    `json:"attempts"`
	Filename         string `json:"filename,omitempty"`
	ReceiptID        string `json:"receipt_id,omitempty"`
	RejectionCode    string `json:"rejection_code,omitempty"`
	RejectionMessage string `json:"rejection_message,omitempty"`
	ReviewReason     string `json:"review_reason,omitempty"`
}

func summarize(s *filing.Submission) submissionSummary {
	return submissionSummary{
		ReportID:         s.ReportID.String(),
		Status:           string(s.Status),
		Attempts:         s.Attempts,
		Filename:         s.Filename.String,
		ReceiptID:        s.ReceiptID.String,
		RejectionCode:    s.RejectionCode.String,
		RejectionMessage: s.RejectionMessage.String,
		ReviewReason:     s.ReviewReason.String,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
