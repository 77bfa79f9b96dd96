package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEvasionsScriptEmbedded(t *testing.T) {
	require.NotEmpty(t, evasionsScript, "evasions.js must be embedded")
	assert.Contains(t, evasionsScript, "webdriver",
		"the script must cover the navigator.webdriver check")
	assert.Contains(t, evasionsScript, "window.chrome")
}

func TestApply(t *testing.T) {
	core, observedLogs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	tasks := Apply(DefaultPersona, logger)
	assert.Len(t, tasks, 5, "user agent, script injection, timezone, locale, headers")

	logs := observedLogs.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "Applying browser persona", logs[0].Message)
}

func TestApply_ToleratesSparseLanguageList(t *testing.T) {
	p := DefaultPersona
	p.Languages = []string{"de-DE"}

	var tasks interface{}
	assert.NotPanics(t, func() {
		tasks = Apply(p, zap.NewNop())
	})
	assert.NotNil(t, tasks)
}

func TestAcceptLanguage(t *testing.T) {
	tests := []struct {
		name  string
		langs []string
		want  string
	}{
		{"two languages", []string{"en-US", "en"}, "en-US,en;q=0.9"},
		{"single language", []string{"de-DE"}, "de-DE"},
		{"three languages", []string{"fr-FR", "fr", "en"}, "fr-FR,fr;q=0.9,en;q=0.8"},
		{"empty falls back", nil, "en-US"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptLanguage(tt.langs))
		})
	}
}

func TestDefaultPersona(t *testing.T) {
	assert.NotEmpty(t, DefaultPersona.UserAgent)
	assert.NotContains(t, DefaultPersona.UserAgent, "Headless")
	require.Len(t, DefaultPersona.Languages, 2)
}
