package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/tg-responder/internal/dispatch"
	"github.com/spigell/tg-responder/internal/model"
	"github.com/spigell/tg-responder/internal/recruiter"
	"github.com/spigell/tg-responder/internal/scoring"
	"github.com/spigell/tg-responder/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryRegistry struct {
	mu     sync.Mutex
	chats  map[int64]*model.ChatSource
	seen   map[[2]int64]bool
	nextID int64
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{chats: map[int64]*model.ChatSource{}, seen: map[[2]int64]bool{}}
}

func (r *memoryRegistry) add(externalID int64, active bool) *model.ChatSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	chat := &model.ChatSource{ID: r.nextID, ExternalID: externalID, Title: "Go jobs", Kind: model.ChatChannel, Active: active}
	r.chats[externalID] = chat
	return chat
}

func (r *memoryRegistry) Observe(_ context.Context, externalID int64, title string, kind model.ChatKind) (*model.ChatSource, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chat, ok := r.chats[externalID]; ok {
		return chat, false, nil
	}
	r.nextID++
	chat := &model.ChatSource{ID: r.nextID, ExternalID: externalID, Title: title, Kind: kind}
	r.chats[externalID] = chat
	return chat, true, nil
}

func (r *memoryRegistry) MarkSeen(_ context.Context, chat *model.ChatSource, messageID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int64{chat.ID, messageID}
	if r.seen[key] {
		return false, nil
	}
	r.seen[key] = true
	return true, nil
}

func (r *memoryRegistry) Active(context.Context) ([]*model.ChatSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []*model.ChatSource
	for _, chat := range r.chats {
		if chat.Active {
			active = append(active, chat)
		}
	}
	return active, nil
}

type staticRules []model.Rule

func (s staticRules) ActiveRules(context.Context) ([]model.Rule, error) { return s, nil }

type memoryVacancies struct {
	mu    sync.Mutex
	items []*model.Vacancy
}

func (m *memoryVacancies) CreateVacancy(_ context.Context, v *model.Vacancy) (*model.Vacancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *v
	created.ID = int64(len(m.items) + 1)
	m.items = append(m.items, &created)
	return &created, nil
}

func (m *memoryVacancies) all() []*model.Vacancy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Vacancy(nil), m.items...)
}

type memoryRecruiters struct {
	mu   sync.Mutex
	rows []*model.Recruiter
}

func (m *memoryRecruiters) RecruiterByHandle(_ context.Context, handle string) (*model.Recruiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if strings.EqualFold(r.Handle, handle) {
			return r, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memoryRecruiters) RecruiterByExternalID(_ context.Context, id int64) (*model.Recruiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ExternalID == id {
			return r, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memoryRecruiters) CreateRecruiter(_ context.Context, r *model.Recruiter) (*model.Recruiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *r
	created.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, &created)
	return &created, nil
}

func (m *memoryRecruiters) UpdateRecruiterHandle(context.Context, int64, string) error { return nil }

type directory map[string]*model.Identity

func (d directory) LookupIdentity(_ context.Context, handle string) (*model.Identity, error) {
	identity, ok := d[handle]
	if !ok {
		return nil, model.ErrNotFound
	}
	return identity, nil
}

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSender) SendMessage(_ context.Context, _ *model.Identity, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSender) SendDocument(ctx context.Context, to *model.Identity, _ string, caption string) error {
	return s.SendMessage(ctx, to, caption)
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

type memoryStats struct {
	mu    sync.Mutex
	stats model.Statistics
}

func (m *memoryStats) IncrementStatistics(_ context.Context, d stats.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.AppliedToRecruiter += d.AppliedToRecruiter
	m.stats.AppliedToOperator += d.AppliedToOperator
	m.stats.RepliedVacancies += d.RepliedVacancies
	return nil
}

func (m *memoryStats) Statistics(context.Context) (*model.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := m.stats
	return &copied, nil
}

type stubReplies struct {
	mu       sync.Mutex
	messages []model.InboundMessage
}

func (s *stubReplies) Capture(_ context.Context, msg model.InboundMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return true, nil
}

type harness struct {
	pipeline   *Pipeline
	registry   *memoryRegistry
	vacancies  *memoryVacancies
	recruiters *memoryRecruiters
	sender     *recordingSender
	operator   *recordingNotifier
	stats      *memoryStats
	replies    *stubReplies
}

var goRules = staticRules{
	{ID: 1, Text: "go developer", Weight: 5, Active: true},
	{ID: 2, Text: "remote", Weight: 3, Active: true},
	{ID: 3, Text: "go backend", Weight: 5, Active: true},
}

func newHarness(t *testing.T, threshold int, cfg Config, log *zap.Logger) *harness {
	t.Helper()

	h := &harness{
		registry:   newMemoryRegistry(),
		vacancies:  &memoryVacancies{},
		recruiters: &memoryRecruiters{},
		sender:     &recordingSender{},
		operator:   &recordingNotifier{},
		stats:      &memoryStats{},
		replies:    &stubReplies{},
	}

	dir := directory{"real_recruiter": {ID: 77, Handle: "real_recruiter", FirstName: "Anna"}}
	aggregator := stats.New(h.stats)

	h.pipeline = New(cfg, Deps{
		Registry:  h.registry,
		Rules:     goRules,
		Vacancies: h.vacancies,
		Engine:    scoring.New(threshold, scoring.DefaultExceptions),
		Resolver:  recruiter.New(h.recruiters, dir, recruiter.DefaultIgnore, log),
		Dispatcher: dispatch.New(dispatch.Config{NotifyMissingRecruiter: true, Rand: rand.New(rand.NewSource(1))}, dispatch.Deps{
			Sender:    h.sender,
			Templates: staticTemplates{{Text: "Hello! {vacancy_title} sounds great."}},
			Counter:   aggregator,
			Operator:  h.operator,
			Logger:    log,
		}),
		Replies: h.replies,
		Logger:  log,
	})

	t.Cleanup(h.pipeline.Wait)
	return h
}

type staticTemplates []*model.ReplyTemplate

func (s staticTemplates) ActiveTemplates(context.Context) ([]*model.ReplyTemplate, error) { return s, nil }

func message(id int64, chat *model.ChatSource, text string) model.InboundMessage {
	return model.InboundMessage{ID: id, ChatID: chat.ExternalID, ChatKind: chat.Kind, Text: text}
}

func TestProcessIgnoredHandleEscalatesToOperator(t *testing.T) {
	h := newHarness(t, 5, Config{}, nil)
	chat := h.registry.add(-100, true)

	result, err := h.pipeline.Process(context.Background(), chat, message(1, chat, "Looking for a Go backend dev. DM @it_rab"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.pipeline.Wait()

	if result != ResultCreated {
		t.Fatalf("expected a vacancy, got %s", result)
	}

	vacancies := h.vacancies.all()
	if len(vacancies) != 1 || vacancies[0].HasRecruiter() {
		t.Fatalf("expected one vacancy without recruiter, got %+v", vacancies)
	}
	if h.operator.count() != 1 || h.sender.count() != 0 {
		t.Fatalf("expected operator notification only, got %d notifications and %d sends", h.operator.count(), h.sender.count())
	}
	if h.stats.stats.AppliedToOperator != 1 || h.stats.stats.AppliedToRecruiter != 0 {
		t.Fatalf("unexpected counters: %+v", h.stats.stats)
	}
}

func TestProcessDispatchesToRecruiter(t *testing.T) {
	h := newHarness(t, 5, Config{}, nil)
	chat := h.registry.add(-100, true)

	result, err := h.pipeline.Process(context.Background(), chat, message(1, chat, "Remote Go Developer position, contact @real_recruiter"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.pipeline.Wait()

	if result != ResultCreated {
		t.Fatalf("expected a vacancy, got %s", result)
	}

	vacancies := h.vacancies.all()
	if len(vacancies) != 1 {
		t.Fatalf("expected one vacancy, got %d", len(vacancies))
	}
	v := vacancies[0]
	if v.Score != 8 || v.Title != "Remote Go Developer position, contact real_recruiter" || v.ChatID != chat.ID {
		t.Fatalf("unexpected vacancy: %+v", v)
	}
	if len(h.recruiters.rows) != 1 || v.RecruiterID != h.recruiters.rows[0].ID {
		t.Fatalf("expected the vacancy to be owned by the created recruiter")
	}
	if h.sender.count() != 1 || h.sender.texts[0] != "Hello! Remote Go Developer position, contact real_recruiter sounds great." {
		t.Fatalf("unexpected sends: %v", h.sender.texts)
	}
	if h.stats.stats.AppliedToRecruiter != 1 {
		t.Fatalf("unexpected counters: %+v", h.stats.stats)
	}
}

func TestProcessStops(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		active    bool
		text      string
		want      Result
	}{
		{name: "below threshold", threshold: 10, active: true, text: "Remote only", want: ResultBelowThreshold},
		{name: "inactive chat", threshold: 5, active: false, text: "Remote Go Developer position, contact @real_recruiter", want: ResultInactive},
		{name: "blank text", threshold: 0, active: true, text: "  \n ", want: ResultBlank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.threshold, Config{}, nil)
			chat := h.registry.add(-100, tt.active)

			result, err := h.pipeline.Process(context.Background(), chat, message(1, chat, tt.text))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			h.pipeline.Wait()

			if result != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, result)
			}
			if len(h.vacancies.all()) != 0 || h.sender.count() != 0 || h.operator.count() != 0 {
				t.Fatal("no side effects expected")
			}
			if chat.Active != tt.active {
				t.Fatal("chat must stay unchanged")
			}
		})
	}
}

func TestProcessInactiveDoesNotMarkSeen(t *testing.T) {
	h := newHarness(t, 5, Config{}, nil)
	chat := h.registry.add(-100, false)
	msg := message(1, chat, "Remote Go Developer position")

	if _, err := h.pipeline.Process(context.Background(), chat, msg); err != nil {
		t.Fatal(err)
	}

	chat.Active = true
	result, err := h.pipeline.Process(context.Background(), chat, msg)
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultCreated {
		t.Fatalf("message of a later activated chat must be scored, got %s", result)
	}
}

func TestProcessDuplicate(t *testing.T) {
	h := newHarness(t, 5, Config{}, nil)
	chat := h.registry.add(-100, true)
	msg := message(1, chat, "Remote Go Developer position")

	first, err := h.pipeline.Process(context.Background(), chat, msg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.pipeline.Process(context.Background(), chat, msg)
	if err != nil {
		t.Fatal(err)
	}
	h.pipeline.Wait()

	if first != ResultCreated || second != ResultDuplicate {
		t.Fatalf("expected created then duplicate, got %s and %s", first, second)
	}
	if len(h.vacancies.all()) != 1 {
		t.Fatalf("expected one vacancy, got %d", len(h.vacancies.all()))
	}
}

func TestProcessUsesCaption(t *testing.T) {
	h := newHarness(t, 5, Config{}, nil)
	chat := h.registry.add(-100, true)

	msg := model.InboundMessage{ID: 1, ChatID: chat.ExternalID, ChatKind: model.ChatChannel, Caption: "Go developer wanted"}
	result, err := h.pipeline.Process(context.Background(), chat, msg)
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultCreated {
		t.Fatalf("expected caption to be scored, got %s", result)
	}
}

func TestHandleInboundRouting(t *testing.T) {
	t.Run("private goes to reply capture", func(t *testing.T) {
		h := newHarness(t, 0, Config{}, nil)
		msg := model.InboundMessage{ID: 1, ChatID: 77, ChatKind: model.ChatPrivate, Sender: &model.Identity{ID: 77}, Text: "hi"}

		if err := h.pipeline.HandleInbound(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
		if len(h.replies.messages) != 1 {
			t.Fatal("expected reply capture")
		}
	})

	t.Run("new channel is observed only", func(t *testing.T) {
		h := newHarness(t, 0, Config{ScoreGroupMessages: true}, nil)
		msg := model.InboundMessage{ID: 1, ChatID: -100, ChatTitle: "Go jobs", ChatKind: model.ChatChannel, Text: "Go developer"}

		if err := h.pipeline.HandleInbound(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
		chat := h.registry.chats[-100]
		if chat == nil || chat.Active || chat.Title != "Go jobs" {
			t.Fatalf("expected an inactive chat, got %+v", chat)
		}
		if len(h.vacancies.all()) != 0 || len(h.registry.seen) != 0 {
			t.Fatal("channel posts are processed by the poller")
		}
	})

	t.Run("group messages wait for the poller by default", func(t *testing.T) {
		h := newHarness(t, 0, Config{}, nil)
		h.registry.add(-200, true).Kind = model.ChatSupergroup
		msg := model.InboundMessage{ID: 1, ChatID: -200, ChatKind: model.ChatSupergroup, Text: "Go developer"}

		if err := h.pipeline.HandleInbound(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
		if len(h.vacancies.all()) != 0 {
			t.Fatal("group message must not be scored")
		}
	})

	t.Run("group messages scored when enabled", func(t *testing.T) {
		h := newHarness(t, 0, Config{ScoreGroupMessages: true}, nil)
		h.registry.add(-200, true).Kind = model.ChatSupergroup
		msg := model.InboundMessage{ID: 1, ChatID: -200, ChatKind: model.ChatSupergroup, Text: "Go developer"}

		if err := h.pipeline.HandleInbound(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
		h.pipeline.Wait()
		if len(h.vacancies.all()) != 1 {
			t.Fatal("expected a vacancy")
		}
	})
}

type panickingReplies struct{}

func (panickingReplies) Capture(context.Context, model.InboundMessage) (bool, error) {
	panic("broken capture")
}

func TestHandleInboundRecoversPanics(t *testing.T) {
	core, observed := observer.New(zapcore.ErrorLevel)
	h := newHarness(t, 0, Config{}, zap.New(core))
	h.pipeline.replies = panickingReplies{}

	err := h.pipeline.HandleInbound(context.Background(), model.InboundMessage{ID: 5, ChatKind: model.ChatPrivate, Sender: &model.Identity{ID: 1}})
	if err == nil || !strings.Contains(err.Error(), "broken capture") {
		t.Fatalf("expected the panic as an error, got %v", err)
	}
	if observed.FilterMessage("recovered from panic while handling message").Len() != 1 {
		t.Fatal("expected the panic to be logged")
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (*model.Recruiter, error) {
	return nil, errors.New("connection reset")
}

func TestProcessStoresVacancyWhenResolverFails(t *testing.T) {
	h := newHarness(t, 5, Config{}, nil)
	h.pipeline.resolver = failingResolver{}
	chat := h.registry.add(-100, true)

	result, err := h.pipeline.Process(context.Background(), chat, message(1, chat, "Go developer, contact @real_recruiter"))
	if err != nil {
		t.Fatal(err)
	}
	h.pipeline.Wait()

	if result != ResultCreated || h.vacancies.all()[0].HasRecruiter() {
		t.Fatal("expected a vacancy without recruiter")
	}
	if h.operator.count() != 1 {
		t.Fatal("expected operator escalation")
	}
}
