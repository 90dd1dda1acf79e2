// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

package policy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/transcodenag/internal/config"
	"github.com/tomtom215/transcodenag/internal/models"
)

// fakeEventLog records appends and serves canned statuses.
type fakeEventLog struct {
	mu       sync.Mutex
	appended []models.NagEvent
	statuses map[string]models.UserNagStatus
}

func newFakeEventLog() *fakeEventLog {
	return &fakeEventLog{statuses: make(map[string]models.UserNagStatus)}
}

func (f *fakeEventLog) Append(event models.NagEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, event)
}

func (f *fakeEventLog) Status(userID string, _ int) models.UserNagStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[userID]; ok {
		return s
	}
	return models.UserNagStatus{UserID: userID}
}

func (f *fakeEventLog) setStatus(s models.UserNagStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[s.UserID] = s
}

func (f *fakeEventLog) events() []models.NagEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.NagEvent(nil), f.appended...)
}

func (f *fakeEventLog) countKind(kind models.EventKind) int {
	n := 0
	for _, e := range f.events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// fakeNotifier records sent messages.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	sessionID string
	header    string
	text      string
}

func (f *fakeNotifier) SendMessage(_ context.Context, sessionID, header, text string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{sessionID: sessionID, header: header, text: text})
	return f.err
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func testNagConfig() config.NagConfig {
	return config.NagConfig{
		PlaybackHeader:     "Transcoding Detected",
		PlaybackMessage:    "This playback is transcoding.",
		LoginHeader:        "Transcoding Alert",
		LoginMessage:       "You caused {{transcodes}} transcodes this {{timewindow}}.",
		MessageTimeout:     10 * time.Second,
		LoginNagEnabled:    true,
		LoginNagThreshold:  5,
		LoginNagTimeWindow: "Week",
		CreditQueueSize:    8,
	}
}

func badPlayback(sessionID, userID string) Playback {
	return Playback{
		SessionID:     sessionID,
		UserID:        userID,
		UserName:      "alice",
		ItemID:        "item-1",
		ItemName:      "Some Movie",
		Client:        "WebClient",
		IsTranscoding: true,
		IsVideoDirect: false,
		Reasons:       models.ReasonVideoCodecNotSupported,
	}
}

func TestHandlePlaybackNagsAndRecords(t *testing.T) {
	log := newFakeEventLog()
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	e.HandlePlayback(context.Background(), badPlayback("s1", "u1"))

	if got := log.countKind(models.EventBadTranscode); got != 1 {
		t.Errorf("bad transcode events = %d, want 1", got)
	}
	msgs := notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent messages = %d, want 1", len(msgs))
	}
	if msgs[0].sessionID != "s1" {
		t.Errorf("sessionID = %q, want %q", msgs[0].sessionID, "s1")
	}
	if msgs[0].header != "Transcoding Detected" {
		t.Errorf("header = %q, want %q", msgs[0].header, "Transcoding Detected")
	}
}

func TestHandlePlaybackDeduplicatesPerPlayback(t *testing.T) {
	log := newFakeEventLog()
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	pb := badPlayback("s1", "u1")
	e.HandlePlayback(context.Background(), pb)
	e.HandlePlayback(context.Background(), pb)

	// Events keep accruing - history must be complete - but the user is only
	// messaged once per playback.
	if got := log.countKind(models.EventBadTranscode); got != 2 {
		t.Errorf("bad transcode events = %d, want 2", got)
	}
	if got := len(notifier.messages()); got != 1 {
		t.Errorf("sent messages = %d, want 1", got)
	}
}

func TestHandlePlaybackStoppedReArmsNag(t *testing.T) {
	log := newFakeEventLog()
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	pb := badPlayback("s1", "u1")
	e.HandlePlayback(context.Background(), pb)
	e.HandlePlaybackStopped(pb.SessionID, pb.ItemID)
	e.HandlePlayback(context.Background(), pb)

	if got := len(notifier.messages()); got != 2 {
		t.Errorf("sent messages = %d, want 2 after stop and replay", got)
	}
}

func TestHandlePlaybackExcludedUserRecordedNotNotified(t *testing.T) {
	cfg := testNagConfig()
	cfg.ExcludedUserIDs = []string{"u1"}
	log := newFakeEventLog()
	notifier := &fakeNotifier{}
	e := NewEngine(cfg, log, notifier)

	e.HandlePlayback(context.Background(), badPlayback("s1", "u1"))

	if got := log.countKind(models.EventBadTranscode); got != 1 {
		t.Errorf("bad transcode events = %d, want 1 (history still recorded)", got)
	}
	if got := len(notifier.messages()); got != 0 {
		t.Errorf("sent messages = %d, want 0 for excluded user", got)
	}
}

func TestHandlePlaybackBitrateOnlyIsNotBad(t *testing.T) {
	log := newFakeEventLog()
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	pb := badPlayback("s1", "u1")
	pb.Reasons = models.ReasonVideoBitrateNotSupported

	e.HandlePlayback(context.Background(), pb)

	if got := log.countKind(models.EventBadTranscode); got != 0 {
		t.Errorf("bad transcode events = %d, want 0 for bitrate-only transcode", got)
	}
	if got := len(notifier.messages()); got != 0 {
		t.Errorf("sent messages = %d, want 0", got)
	}
}

func TestGoodPlaybackRecordsCredit(t *testing.T) {
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{
		UserID:              "u1",
		LastBadTranscodeUTC: time.Now().Add(-time.Hour),
	})
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer e.Stop()

	pb := badPlayback("s1", "u1")
	pb.IsTranscoding = false
	pb.Reasons = 0
	pb.IsVideoDirect = true

	e.HandlePlayback(ctx, pb)
	e.WaitCredits()

	if got := log.countKind(models.EventImprovementCredit); got != 1 {
		t.Errorf("credit events = %d, want 1", got)
	}
}

func TestGoodPlaybackWithoutPriorBadIsSilent(t *testing.T) {
	log := newFakeEventLog()
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer e.Stop()

	pb := badPlayback("s1", "u1")
	pb.IsTranscoding = false
	pb.Reasons = 0
	pb.IsVideoDirect = true

	e.HandlePlayback(ctx, pb)
	e.WaitCredits()

	// Users who always direct play generate no events at all.
	if got := len(log.events()); got != 0 {
		t.Errorf("events = %d, want 0 for user with no history", got)
	}
}

func TestGoodPlaybackDoesNotDuplicateCredit(t *testing.T) {
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{
		UserID:               "u1",
		LastBadTranscodeUTC:  time.Now().Add(-time.Hour),
		HasImprovementCredit: true,
	})
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer e.Stop()

	pb := badPlayback("s1", "u1")
	pb.IsTranscoding = false
	pb.Reasons = 0
	pb.IsVideoDirect = true

	e.HandlePlayback(ctx, pb)
	e.WaitCredits()

	if got := log.countKind(models.EventImprovementCredit); got != 0 {
		t.Errorf("credit events = %d, want 0 when a valid credit already exists", got)
	}
}

func TestHandleSessionOpenBelowThreshold(t *testing.T) {
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{UserID: "u1", BadTranscodeCount: 3})
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	e.HandleSessionOpen(context.Background(), SessionOpen{SessionID: "s1", UserID: "u1"})

	if got := len(notifier.messages()); got != 0 {
		t.Errorf("sent messages = %d, want 0 below threshold", got)
	}
	if got := log.countKind(models.EventNagSent); got != 0 {
		t.Errorf("nag sent events = %d, want 0", got)
	}
}

func TestHandleSessionOpenAtThreshold(t *testing.T) {
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{UserID: "u1", BadTranscodeCount: 6})
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	e.HandleSessionOpen(context.Background(), SessionOpen{SessionID: "s1", UserID: "u1", UserName: "alice"})

	msgs := notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent messages = %d, want 1", len(msgs))
	}
	if msgs[0].header != "Transcoding Alert" {
		t.Errorf("header = %q, want %q", msgs[0].header, "Transcoding Alert")
	}
	want := "You caused 6 transcodes this week."
	if msgs[0].text != want {
		t.Errorf("text = %q, want %q", msgs[0].text, want)
	}
	if got := log.countKind(models.EventNagSent); got != 1 {
		t.Errorf("nag sent events = %d, want 1", got)
	}
}

func TestHandleSessionOpenMonthlyWindowLabel(t *testing.T) {
	cfg := testNagConfig()
	cfg.LoginNagTimeWindow = "Month"
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{UserID: "u1", BadTranscodeCount: 9})
	notifier := &fakeNotifier{}
	e := NewEngine(cfg, log, notifier)

	e.HandleSessionOpen(context.Background(), SessionOpen{SessionID: "s1", UserID: "u1"})

	msgs := notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent messages = %d, want 1", len(msgs))
	}
	want := "You caused 9 transcodes this month."
	if msgs[0].text != want {
		t.Errorf("text = %q, want %q", msgs[0].text, want)
	}
}

func TestHandleSessionOpenRateLimited(t *testing.T) {
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{UserID: "u1", BadTranscodeCount: 10, NaggedRecently: true})
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	e.HandleSessionOpen(context.Background(), SessionOpen{SessionID: "s1", UserID: "u1"})

	if got := len(notifier.messages()); got != 0 {
		t.Errorf("sent messages = %d, want 0 when nagged recently", got)
	}
}

func TestHandleSessionOpenCreditSuppresses(t *testing.T) {
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{UserID: "u1", BadTranscodeCount: 10, HasImprovementCredit: true})
	notifier := &fakeNotifier{}
	e := NewEngine(testNagConfig(), log, notifier)

	e.HandleSessionOpen(context.Background(), SessionOpen{SessionID: "s1", UserID: "u1"})

	if got := len(notifier.messages()); got != 0 {
		t.Errorf("sent messages = %d, want 0 when the user holds a credit", got)
	}
}

func TestHandleSessionOpenExcludedUser(t *testing.T) {
	cfg := testNagConfig()
	cfg.ExcludedUserIDs = []string{"u1"}
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{UserID: "u1", BadTranscodeCount: 10})
	notifier := &fakeNotifier{}
	e := NewEngine(cfg, log, notifier)

	e.HandleSessionOpen(context.Background(), SessionOpen{SessionID: "s1", UserID: "u1"})

	if got := len(notifier.messages()); got != 0 {
		t.Errorf("sent messages = %d, want 0 for excluded user", got)
	}
	if got := log.countKind(models.EventNagSent); got != 0 {
		t.Errorf("nag sent events = %d, want 0 for excluded user", got)
	}
}

func TestHandleSessionOpenDisabled(t *testing.T) {
	cfg := testNagConfig()
	cfg.LoginNagEnabled = false
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{UserID: "u1", BadTranscodeCount: 10})
	notifier := &fakeNotifier{}
	e := NewEngine(cfg, log, notifier)

	e.HandleSessionOpen(context.Background(), SessionOpen{SessionID: "s1", UserID: "u1"})

	if got := len(notifier.messages()); got != 0 {
		t.Errorf("sent messages = %d, want 0 when login nag disabled", got)
	}
}

func TestHandleSessionOpenRecordsNagDespiteSendFailure(t *testing.T) {
	log := newFakeEventLog()
	log.setStatus(models.UserNagStatus{UserID: "u1", BadTranscodeCount: 10})
	notifier := &fakeNotifier{err: errors.New("session vanished")}
	e := NewEngine(testNagConfig(), log, notifier)

	e.HandleSessionOpen(context.Background(), SessionOpen{SessionID: "s1", UserID: "u1"})

	// The rate-limit marker records the decision, not the delivery.
	if got := log.countKind(models.EventNagSent); got != 1 {
		t.Errorf("nag sent events = %d, want 1 even when delivery fails", got)
	}
}
