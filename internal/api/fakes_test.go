package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/Priya8975/traffic-tracker/internal/engine"
	"github.com/Priya8975/traffic-tracker/internal/fraud"
)

var errStoreDown = errors.New("connection refused")

// memStore is an in-memory EventStore.
type memStore struct {
	mu     sync.Mutex
	events []domain.Event
	nextID int64
	err    error
}

func (s *memStore) Ping(ctx context.Context) error { return s.err }

func (s *memStore) CreateEvent(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.nextID++
	stored := *e
	stored.ID = s.nextID
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	s.events = append(s.events, stored)
	return &stored, nil
}

// CountRecentByIP treats until as inclusive so back-to-back inserts on a
// coarse clock are still counted.
func (s *memStore) CountRecentByIP(ctx context.Context, ip string, since, until time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.IPAddress == ip && !e.Timestamp.Before(since) && !e.Timestamp.After(until) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, e := range s.events {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Event
	for _, e := range s.events {
		if matches(f, e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) ListEvents(ctx context.Context, f domain.EventFilter, page, perPage int) (*domain.EventPage, error) {
	all, err := s.FindEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	return &domain.EventPage{Events: all[start:end], Total: len(all), Page: page, PerPage: perPage}, nil
}

func (s *memStore) GetTrafficMetrics(ctx context.Context, f domain.EventFilter) (*domain.TrafficMetrics, error) {
	all, err := s.FindEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	m := &domain.TrafficMetrics{TotalEvents: len(all)}
	ips := map[string]struct{}{}
	for _, e := range all {
		if e.IsValidClick {
			m.ValidClicks++
		} else {
			m.InvalidClicks++
		}
		ips[e.IPAddress] = struct{}{}
	}
	m.UniqueIPs = len(ips)
	return m, nil
}

func matches(f domain.EventFilter, e domain.Event) bool {
	switch f.Status {
	case domain.StatusValid:
		if !e.IsValidClick {
			return false
		}
	case domain.StatusInvalid:
		if e.IsValidClick {
			return false
		}
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	if f.Country != "" && deref(e.Country) != f.Country {
		return false
	}
	if f.Channel != "" && deref(e.Channel) != f.Channel {
		return false
	}
	if f.InvalidReasonContains != "" &&
		!strings.Contains(strings.ToLower(deref(e.InvalidReason)), strings.ToLower(f.InvalidReasonContains)) {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}

func (s *memStore) add(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.events = append(s.events, e)
}

type staticGeo struct {
	data  domain.GeoData
	calls int
	mu    sync.Mutex
}

func (g *staticGeo) Lookup(ctx context.Context, ip string) domain.GeoData {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.data
}

// slowGeo answers like staticGeo after a fixed delay.
type slowGeo struct {
	staticGeo
	delay time.Duration
}

func (g *slowGeo) Lookup(ctx context.Context, ip string) domain.GeoData {
	time.Sleep(g.delay)
	return g.staticGeo.Lookup(ctx, ip)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) PublishEvent(e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []engine.ExclusionJob
}

func (q *recordingEnqueuer) Enqueue(ctx context.Context, eventID int64, ip, campaignID, listName string) (*engine.ExclusionJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := engine.ExclusionJob{ID: "job", EventID: eventID, IPAddress: ip, CampaignID: campaignID, ListName: listName, Attempt: 1, MaxAttempts: engine.DefaultMaxAttempts}
	q.jobs = append(q.jobs, job)
	return &job, nil
}

func (q *recordingEnqueuer) snapshot() []engine.ExclusionJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]engine.ExclusionJob(nil), q.jobs...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestValidator(store fraud.RecentCounter) *fraud.Validator {
	v, err := fraud.NewValidator(fraud.DefaultConfig(), store, testLogger())
	if err != nil {
		panic(err)
	}
	return v
}
