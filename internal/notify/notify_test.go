package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"nifty-strangler/internal/config"
	"nifty-strangler/internal/models"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingChannel) Name() string    { return "recording" }
func (r *recordingChannel) IsEnabled() bool { return true }
func (r *recordingChannel) Send(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func TestMultiNotifierLevelFilter(t *testing.T) {
	tests := []struct {
		level string
		typ   NotificationType
		want  bool
	}{
		{"all", NotificationInfo, true},
		{"trades_only", NotificationEntry, true},
		{"trades_only", NotificationAdjustment, true},
		{"trades_only", NotificationExit, true},
		{"trades_only", NotificationSummary, false},
		{"errors_only", NotificationError, true},
		{"errors_only", NotificationExit, false},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+string(tt.typ), func(t *testing.T) {
			mn := NewMultiNotifier(config.NotificationConfig{Level: tt.level}, zerolog.Nop())
			ch := &recordingChannel{}
			mn.AddChannel(ch)

			if err := mn.Send(context.Background(), Notification{Type: tt.typ, Title: "t"}); err != nil {
				t.Fatalf("Send: %v", err)
			}
			if got := len(ch.sent) == 1; got != tt.want {
				t.Errorf("delivered = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMultiNotifierJoinsChannelErrors(t *testing.T) {
	mn := NewMultiNotifier(config.NotificationConfig{}, zerolog.Nop())
	boom := errors.New("boom")
	failing := &recordingChannel{err: boom}
	ok := &recordingChannel{}
	mn.AddChannel(failing)
	mn.AddChannel(ok)

	err := mn.Send(context.Background(), InfoAlert("hello", "world"))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(ok.sent) != 1 {
		t.Error("later channel was skipped after an earlier failure")
	}
	if ok.sent[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL}, time.Second)
	n := ExitAlert(7, 2500, 1000000, models.ReasonForceClose)
	n.Timestamp = time.Now()
	if err := w.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["type"] != string(NotificationExit) || got["title"] != "EXIT #7" {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL}, time.Second)
	if err := w.Send(context.Background(), InfoAlert("a", "b")); err == nil {
		t.Error("expected an error for a 502 response")
	}
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "TOKEN", ChatID: "42"}, time.Second)
	tg.apiBase = srv.URL

	if err := tg.Send(context.Background(), AdjustmentAlert(3, 2, "Roll CE 22300 → new 20-delta", "delta 0.41 > 0.35")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	text, _ := payload["text"].(string)
	if !strings.Contains(text, "<b>GAMMA ADJUSTMENT LEVEL 2</b>") || !strings.Contains(text, "delta 0.41 &gt; 0.35") {
		t.Errorf("text = %q", text)
	}
	if payload["chat_id"] != "42" {
		t.Errorf("chat_id = %v", payload["chat_id"])
	}
}

func TestTelegramNotifierAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "T", ChatID: "1"}, time.Second)
	tg.apiBase = srv.URL
	err := tg.Send(context.Background(), InfoAlert("a", "b"))
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("err = %v", err)
	}
}

func TestTelegramDisabledWithoutCredentials(t *testing.T) {
	tg := NewTelegramNotifier(config.TelegramConfig{Enabled: true}, 0)
	if tg.IsEnabled() {
		t.Error("telegram enabled without token")
	}
}

func TestMessages(t *testing.T) {
	entry := time.Date(2024, 6, 3, 9, 25, 0, 0, time.UTC)
	s := &models.Structure{
		TradeID:          1,
		StrategyType:     models.StrategyGammaStrangle,
		EntrySpot:        22012.5,
		EntryTime:        entry,
		PremiumCollected: 5200,
		Legs: []*models.Leg{
			models.NewLeg("CE", 22300, models.OptionCall, models.OrderSideSell, 60, 65, models.Greeks{}, false, entry),
			models.NewLeg("PE", 21700, models.OptionPut, models.OrderSideSell, 55, 65, models.Greeks{}, false, entry),
			models.NewLeg("CEH", 22600, models.OptionCall, models.OrderSideBuy, 20, 65, models.Greeks{}, true, entry),
			models.NewLeg("PEH", 21400, models.OptionPut, models.OrderSideBuy, 15, 65, models.Greeks{}, true, entry),
		},
	}

	n := EntryAlert(s, 3900)
	if !strings.Contains(n.Message, "Strikes: CE 22300 | PE 21700") || !strings.Contains(n.Message, "₹5,200.00") {
		t.Errorf("entry message = %q", n.Message)
	}

	exit := ExitAlert(1, 2500, 1000000, models.ReasonTargetHit)
	if !strings.Contains(exit.Message, "Return %: 0.25%") {
		t.Errorf("exit message = %q", exit.Message)
	}
	if zero := ExitAlert(1, 2500, 0, models.ReasonManual); zero.Data["return_pct"] != 0.0 {
		t.Errorf("return with no capital = %v", zero.Data["return_pct"])
	}

	eod := EODReport(models.DailySummary{TradeDate: entry, TotalTrades: 2, NetPnL: 123456.78, WinRate: 50})
	if !strings.Contains(eod.Message, "₹1,23,456.78") || !strings.Contains(eod.Title, "2024-06-03") {
		t.Errorf("eod = %q / %q", eod.Title, eod.Message)
	}
}

func TestTerminalNotifier(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	tn := NewTerminalNotifier(&buf)

	n := AdjustmentAlert(3, 1, "Roll PE 21700 → new 20-delta", "spot_move")
	n.Timestamp = time.Date(2024, 6, 3, 10, 5, 0, 0, time.UTC)
	if err := tn.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "[10:05:00] ADJUST GAMMA ADJUSTMENT LEVEL 1") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "\n    Reason: spot_move") {
		t.Errorf("output = %q", out)
	}
}

func TestErrorAlertMasksCredentials(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/sendMessage": EOF`)
	n := ErrorAlert(err, "notify")
	if strings.Contains(n.Message, "AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw") {
		t.Errorf("bot token leaked into alert: %s", n.Message)
	}
	if n.Data["context"] != "notify" {
		t.Errorf("context = %v", n.Data["context"])
	}
}
