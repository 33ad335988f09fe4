package sysutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	for in, want := range map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		"  DeBuG  ": zerolog.DebugLevel,
		"":          zerolog.InfoLevel,
		"warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"panic":     zerolog.PanicLevel,
		"verbose":   zerolog.InfoLevel,
	} {
		SetLogLevel(in)
		if got := zerolog.GlobalLevel(); got != want {
			t.Fatalf("SetLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsTruthyAndFirstNonEmpty(t *testing.T) {
	for v, want := range map[string]bool{
		"1": true, "TRUE": true, " yes ": true, "On": true,
		"": false, "0": false, "off": false, "enabled": false,
	} {
		if IsTruthy(v) != want {
			t.Fatalf("IsTruthy(%q) != %v", v, want)
		}
	}

	// REAPER_ENABLED unset falls through to the default.
	if got := FirstNonEmpty("", "  ", "true"); got != "true" {
		t.Fatalf("FirstNonEmpty = %q", got)
	}
	if got := FirstNonEmpty(" v1.2.0 ", "dev"); got != " v1.2.0 " {
		t.Fatalf("FirstNonEmpty must not trim: %q", got)
	}
	if FirstNonEmpty() != "" {
		t.Fatalf("FirstNonEmpty() must be empty")
	}
}

func TestSetupLogger_JSONAndPretty(t *testing.T) {
	origLevel := zerolog.GlobalLevel()
	origLogger := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
	})

	var buf bytes.Buffer
	SetupLogger("warn", false, "reportd", &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"service":"reportd"`) || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("expected JSON line with service field, got: %s", out)
	}

	buf.Reset()
	SetupLogger("debug", true, "", &buf)
	log.Debug().Msg("pretty line")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") || !strings.Contains(buf.String(), "pretty line") {
		t.Fatalf("expected console output, got: %s", buf.String())
	}
}
