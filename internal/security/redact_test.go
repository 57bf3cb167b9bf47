package security

import (
	"strings"
	"testing"

	"nifty-strangler/internal/config"
)

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcdef", "ab****"},
		{"abcdefghijkl", "abcd****ijkl"},
	}
	for _, tt := range tests {
		if got := MaskCredential(tt.in); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskString(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		secret string
	}{
		{
			name:   "telegram url",
			in:     `Post "https://api.telegram.org/bot123456:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/sendMessage": dial tcp: timeout`,
			secret: "AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw",
		},
		{
			name:   "key value",
			in:     "login failed: api_secret=s3cr3tvalue99 rejected",
			secret: "s3cr3tvalue99",
		},
		{
			name:   "kite header",
			in:     "Authorization: token abcd1234:zzzzyyyyxxxxwwww",
			secret: "zzzzyyyyxxxxwwww",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskString(tt.in)
			if strings.Contains(got, tt.secret) {
				t.Errorf("MaskString left secret in %q", got)
			}
			if !ContainsSensitiveData(tt.in) {
				t.Errorf("ContainsSensitiveData(%q) = false", tt.in)
			}
		})
	}

	plain := "spot 22000.00 moved 0.6%"
	if got := MaskString(plain); got != plain {
		t.Errorf("MaskString(%q) = %q", plain, got)
	}
}

func TestRedactConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials.Kite.APIKey = "kitekey123456"
	cfg.Credentials.Kite.AccessToken = "accesstoken987654"
	cfg.Notifications.Telegram.BotToken = "123456:secretbottoken"

	red := RedactConfig(cfg)
	if red.Credentials.Kite.APIKey == cfg.Credentials.Kite.APIKey {
		t.Error("api key not masked")
	}
	if red.Credentials.Kite.AccessToken == cfg.Credentials.Kite.AccessToken {
		t.Error("access token not masked")
	}
	if red.Notifications.Telegram.BotToken == cfg.Notifications.Telegram.BotToken {
		t.Error("bot token not masked")
	}
	if cfg.Credentials.Kite.APIKey != "kitekey123456" {
		t.Error("original config modified")
	}
	if red.Trading.Capital != cfg.Trading.Capital {
		t.Error("non-secret fields should be copied")
	}
}
