package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"

	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/transport"
)

type fakeOps struct {
	counts   map[filing.Status]int
	sub      *filing.Submission
	err      error
	enqueued []uuid.UUID
	retried  []uuid.UUID
}

func (f *fakeOps) Stats(context.Context) (map[filing.Status]int, error) {
	return f.counts, f.err
}

func (f *fakeOps) EnqueueReport(_ context.Context, id uuid.UUID) (*filing.Submission, error) {
	f.enqueued = append(f.enqueued, id)
	return f.sub, f.err
}

func (f *fakeOps) RetryReport(_ context.Context, id uuid.UUID) (*filing.Submission, error) {
	f.retried = append(f.retried, id)
	return f.sub, f.err
}

type fakePinger struct{ res transport.PingResult }

func (f fakePinger) Ping(context.Context) transport.PingResult { return f.res }

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestStatsReply(t *testing.T) {
	ops := &fakeOps{counts: map[filing.Status]int{filing.StatusQueued: 2, filing.StatusAccepted: 5}}
	h := NewAdminHandlers(ops, fakePinger{}, 1, quietLogger())

	reply := h.stats(context.Background(), nil)
	assert.Contains(t, reply, "queued: 2")
	assert.Contains(t, reply, "accepted: 5")
	assert.Contains(t, reply, "needs_review: 0")
	assert.True(t, strings.HasSuffix(reply, "total: 7"))
}

func TestPingReply(t *testing.T) {
	h := NewAdminHandlers(&fakeOps{}, fakePinger{res: transport.PingResult{
		OK: true, Host: "sftp.example.test:22", LatencyMS: 41,
		Submissions: transport.DirListing{Path: "/submissions", Count: 1, Sample: []string{"A.xml"}},
		Acks:        transport.DirListing{Path: "/acks", Error: "permission denied"},
	}}, 1, quietLogger())

	reply := h.ping(context.Background(), nil)
	assert.Contains(t, reply, "OK in 41 ms")
	assert.Contains(t, reply, "/submissions: 1 files (A.xml)")
	assert.Contains(t, reply, "/acks: error permission denied")

	down := NewAdminHandlers(&fakeOps{}, fakePinger{res: transport.PingResult{Host: "h:22", ErrorKind: "auth", Error: "bad key"}}, 1, quietLogger())
	assert.Equal(t, "SFTP h:22 unreachable (auth): bad key", down.ping(context.Background(), nil))
}

func TestEnqueueAndRetryReplies(t *testing.T) {
	id := uuid.New()

	t.Run("bad arguments", func(t *testing.T) {
		ops := &fakeOps{}
		h := NewAdminHandlers(ops, fakePinger{}, 1, quietLogger())
		assert.Contains(t, h.enqueue(context.Background(), nil), "Use: /filing_enqueue <report_id>")
		assert.Contains(t, h.retry(context.Background(), []string{"42"}), "must be a UUID")
		assert.Empty(t, ops.enqueued)
		assert.Empty(t, ops.retried)
	})

	t.Run("queued", func(t *testing.T) {
		ops := &fakeOps{sub: &filing.Submission{ID: uuid.New(), Status: filing.StatusQueued, Attempts: 2}}
		h := NewAdminHandlers(ops, fakePinger{}, 1, quietLogger())
		reply := h.retry(context.Background(), []string{id.String()})
		assert.Contains(t, reply, "queued for filing")
		require.Len(t, ops.retried, 1)
		assert.Equal(t, id, ops.retried[0])
	})

	t.Run("invalid transition", func(t *testing.T) {
		ops := &fakeOps{
			sub: &filing.Submission{Status: filing.StatusSubmitted},
			err: &filing.TransitionError{Op: "enqueue", From: filing.StatusSubmitted},
		}
		h := NewAdminHandlers(ops, fakePinger{}, 1, quietLogger())
		assert.Equal(t, "Cannot enqueue report "+id.String()+": it is submitted.", h.enqueue(context.Background(), []string{id.String()}))
	})

	t.Run("unknown report", func(t *testing.T) {
		ops := &fakeOps{err: filing.ErrSubmissionNotFound}
		h := NewAdminHandlers(ops, fakePinger{}, 1, quietLogger())
		assert.Contains(t, h.retry(context.Background(), []string{id.String()}), "No filing submission exists")
	})
}

type recordingSender struct {
	to   telebot.Recipient
	text string
	err  error
}

func (r *recordingSender) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	r.to = to
	r.text, _ = what.(string)
	return &telebot.Message{}, r.err
}

func TestAdminAlerter(t *testing.T) {
	sender := &recordingSender{}
	alerter := NewAdminAlerter(sender, 777)

	require.NoError(t, alerter.Alert(context.Background(), "auth failed"))
	assert.Equal(t, "777", sender.to.Recipient())
	assert.Contains(t, sender.text, "auth failed")

	t.Run("long alerts are truncated", func(t *testing.T) {
		require.NoError(t, alerter.Alert(context.Background(), strings.Repeat("x", 5000)))
		assert.Len(t, []rune(sender.text), maxMessageLen)
	})

	t.Run("send errors are returned", func(t *testing.T) {
		sender.err = errors.New("chat not found")
		assert.ErrorContains(t, alerter.Alert(context.Background(), "x"), "chat not found")
	})
}
