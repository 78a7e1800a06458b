package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "CTR", cfg.Numbering.ContractPrefix)
	assert.Equal(t, "INV", cfg.Numbering.InvoicePrefix)
	assert.Equal(t, 5, cfg.Numbering.MaxAttempts)
	assert.Equal(t, ",", cfg.Documents.DecimalSeparator)
	assert.Equal(t, 30, cfg.Documents.InvoiceDueDays)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NUMBERING_CONTRACT_PREFIX", "CON")
	t.Setenv("NUMBERING_MAX_ATTEMPTS", "9")
	t.Setenv("DOCUMENTS_RENDER_TIMEOUT", "3s")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "CON", cfg.Numbering.ContractPrefix)
	assert.Equal(t, 9, cfg.Numbering.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Documents.RenderTimeout)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestLoadRejectsSharedPrefix(t *testing.T) {
	t.Setenv("NUMBERING_CONTRACT_PREFIX", "DOC")
	t.Setenv("NUMBERING_INVOICE_PREFIX", "DOC")

	_, err := Load()
	assert.Error(t, err)
}
