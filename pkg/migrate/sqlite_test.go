package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestApplySQLiteSchemaCreatesLedgerTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:schema_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, ApplySQLiteSchema(context.Background(), conn))
	// idempotent
	require.NoError(t, ApplySQLiteSchema(context.Background(), conn))

	for _, table := range []string{"contracts", "price_proposals", "escrow_transactions", "webhook_events", "shipments", "disputes", "outbox_events", "outbox_dlq", "audit_logs", "sms_logs"} {
		require.Truef(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestSQLiteStatementsSplitOnTerminator(t *testing.T) {
	stmts := sqliteStatements()
	require.NotEmpty(t, stmts)
	for _, stmt := range stmts {
		require.Contains(t, stmt, ";")
	}
}
