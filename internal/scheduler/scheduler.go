package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/record"
	"github.com/aurabot/aura/internal/storage"
)

// store is the slice of the persistence layer the background jobs need.
type store interface {
	GetDueItems(now time.Time) ([]record.DueItem, error)
	MarkReminded(kind record.Kind, id int64) error
	DeleteExpired(now time.Time) (int64, error)
	GetContextsNeedingSummary() ([]storage.Context, error)
	GetContentForContext(contextID int64) ([]storage.RecordSummary, error)
	UpdateContextSummary(id int64, summary string, embedding []float32) error
}

// notifier delivers standalone reminder mails.
type notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// llm is the slice of the generation gateway the summarization worker needs.
// Summaries for one pass are embedded together in a single batch.
type llm interface {
	Complete(ctx context.Context, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Intervals configures how often each background job fires.
type Intervals struct {
	Reminder time.Duration
	Purge    time.Duration
	Summary  time.Duration
}

// Scheduler runs the three maintenance jobs on independent fixed intervals:
// the reminder sweep, the expiry purge, and the summarization worker. Jobs
// share no state with an in-flight request cycle beyond the storage layer.
type Scheduler struct {
	store    store
	notifier notifier
	llm      llm
	iv       Intervals
	logger   *slog.Logger
	now      func() time.Time
}

func New(store store, notifier notifier, llm llm, iv Intervals) *Scheduler {
	if iv.Reminder <= 0 {
		iv.Reminder = 5 * time.Minute
	}
	if iv.Purge <= 0 {
		iv.Purge = time.Hour
	}
	if iv.Summary <= 0 {
		iv.Summary = 2 * time.Minute
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		llm:      llm,
		iv:       iv,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// Run starts all jobs and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"reminders", s.iv.Reminder, s.SweepReminders},
		{"purge", s.iv.Purge, s.PurgeExpired},
		{"summaries", s.iv.Summary, s.SummarizeContexts},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job.name, job.interval, job.run)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler job started", "job", name, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// SweepReminders emails the user about every task or event that has come
// due, then marks each so it is never reminded about again. Marking happens
// only after a successful send; a failed send retries on the next sweep.
func (s *Scheduler) SweepReminders(ctx context.Context) {
	items, err := s.store.GetDueItems(s.now())
	if err != nil {
		s.logger.Error("fetching due items failed", "error", err)
		return
	}
	for _, item := range items {
		subject := fmt.Sprintf("Reminder: %s", item.Content)
		body := fmt.Sprintf("%s %q was due %s.", item.Kind, item.Content,
			item.DueDate.Local().Format("Mon Jan 2 at 15:04"))
		if err := s.notifier.Send(ctx, subject, body); err != nil {
			s.logger.Error("sending reminder failed", "kind", item.Kind, "id", item.ID, "error", err)
			continue
		}
		if err := s.store.MarkReminded(item.Kind, item.ID); err != nil {
			s.logger.Error("marking reminded failed", "kind", item.Kind, "id", item.ID, "error", err)
		}
	}
}

// PurgeExpired deletes expired records.
func (s *Scheduler) PurgeExpired(ctx context.Context) {
	n, err := s.store.DeleteExpired(s.now())
	if err != nil {
		s.logger.Error("purging expired records failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("purged expired records", "count", n)
	}
}

// SummarizeContexts regenerates the summary and embedding of every context
// flagged needs_summary. Summaries are generated one at a time, then the
// whole batch is embedded in a single call. A row flips to stable only when
// summary, embedding, and the write all succeed; any failure leaves it
// flagged so the next pass retries.
func (s *Scheduler) SummarizeContexts(ctx context.Context) {
	contexts, err := s.store.GetContextsNeedingSummary()
	if err != nil {
		s.logger.Error("fetching contexts needing summary failed", "error", err)
		return
	}

	var (
		done      []storage.Context
		summaries []string
		inputs    []string
	)
	for _, c := range contexts {
		if ctx.Err() != nil {
			return
		}
		summary, err := s.buildSummary(ctx, c)
		if err != nil {
			s.logger.Error("summarizing context failed", "context_id", c.ID, "name", c.Name, "error", err)
			continue
		}
		done = append(done, c)
		summaries = append(summaries, summary)
		inputs = append(inputs, c.Name+": "+summary)
	}
	if len(done) == 0 {
		return
	}

	embeddings, err := s.llm.EmbedBatch(ctx, inputs)
	if err != nil {
		s.logger.Error("embedding summaries failed", "count", len(inputs), "error", err)
		return
	}

	for i, c := range done {
		if err := s.store.UpdateContextSummary(c.ID, summaries[i], embeddings[i]); err != nil {
			s.logger.Error("storing summary failed", "context_id", c.ID, "name", c.Name, "error", err)
			continue
		}
		s.logger.Info("context summary refreshed", "context_id", c.ID, "name", c.Name)
	}
}

func (s *Scheduler) buildSummary(ctx context.Context, c storage.Context) (string, error) {
	records, err := s.store.GetContentForContext(c.ID)
	if err != nil {
		return "", fmt.Errorf("fetching records: %w", err)
	}

	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "- %s (%s): %s\n", r.Kind, r.CreatedAt.Format("2006-01-02"), r.Content)
	}

	summary, err := s.llm.Complete(ctx, []ollama.Message{
		{Role: "system", Content: "Summarize the records below into two or three sentences describing what this topic is about and what is currently pending. Output only the summary."},
		{Role: "user", Content: fmt.Sprintf("Topic: %s\n\nRecords:\n%s", c.Name, b.String())},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("generating summary: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("generated summary was empty")
	}
	return summary, nil
}
