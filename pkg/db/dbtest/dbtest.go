// Package dbtest provides sqlite-backed ledgers for package tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/migrate"
)

// Open returns an isolated in-memory ledger with the full schema applied.
// The pool holds a single connection so concurrent transactions serialize
// the way row locks serialize them in Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.ApplySQLiteSchema(context.Background(), conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return conn
}

// Client wraps Open in a db.Client so services can run real transactions.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.FromGorm(conn, time.Second), conn
}

// SeedUser inserts a directory entry for the given role.
func SeedUser(t testing.TB, conn *gorm.DB, role enums.Role) models.User {
	t.Helper()
	id := uuid.New()
	phone := "+2547" + id.String()[:8]
	user := models.User{
		ID:       id,
		Email:    fmt.Sprintf("%s-%s@example.com", role, id.String()[:8]),
		Phone:    &phone,
		FullName: fmt.Sprintf("Test %s", role),
		Role:     role,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedListing inserts a listing owned by farmerID. A nil quantity leaves
// availability unknown.
func SeedListing(t testing.TB, conn *gorm.DB, farmerID uuid.UUID, quantity *decimal.Decimal) models.Listing {
	t.Helper()
	listing := models.Listing{
		ID:       uuid.New(),
		FarmerID: farmerID,
		CropName: "Maize",
		Unit:     "kg",
	}
	if quantity != nil {
		listing.QuantityAvailable = decimal.NewNullDecimal(*quantity)
	}
	if err := conn.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

// Count returns the number of rows in table matching the optional condition.
func Count(t testing.TB, conn *gorm.DB, table string, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := conn.Table(table)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// ContractSeed describes a contract row inserted directly, bypassing the
// state machine.
type ContractSeed struct {
	Listing  models.Listing
	BuyerID  uuid.UUID
	Quantity string
	Price    string
	Status   enums.ContractStatus
	EndDate  *time.Time
}

// SeedContract inserts a contract with total = quantity x price.
func SeedContract(t testing.TB, conn *gorm.DB, seed ContractSeed) models.Contract {
	t.Helper()
	if seed.Quantity == "" {
		seed.Quantity = "10"
	}
	if seed.Price == "" {
		seed.Price = "25.00"
	}
	if seed.Status == "" {
		seed.Status = enums.ContractStatusDraft
	}
	qty := decimal.RequireFromString(seed.Quantity)
	price := decimal.RequireFromString(seed.Price)
	contract := models.Contract{
		ID:             uuid.New(),
		ListingID:      seed.Listing.ID,
		BuyerID:        seed.BuyerID,
		FarmerID:       seed.Listing.FarmerID,
		AgreedQuantity: qty,
		PricePerUnit:   price,
		TotalValue:     qty.Mul(price).Round(2),
		StartDate:      time.Now().UTC(),
		EndDate:        seed.EndDate,
		Status:         seed.Status,
	}
	if err := conn.Create(&contract).Error; err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return contract
}

// SeedEscrow inserts an escrow for contractID. An empty reference gets a unique one.
func SeedEscrow(t testing.TB, conn *gorm.DB, contractID uuid.UUID, amount string, status enums.EscrowStatus, reference string) models.EscrowTransaction {
	t.Helper()
	if reference == "" {
		reference = "mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	escrow := models.EscrowTransaction{
		ID:               uuid.New(),
		ContractID:       contractID,
		Amount:           decimal.RequireFromString(amount),
		Status:           status,
		PaymentReference: reference,
	}
	if err := conn.Create(&escrow).Error; err != nil {
		t.Fatalf("seed escrow: %v", err)
	}
	return escrow
}

// SeedDispute inserts a dispute in the given status.
func SeedDispute(t testing.TB, conn *gorm.DB, contractID, raisedBy uuid.UUID, status enums.DisputeStatus) models.Dispute {
	t.Helper()
	dispute := models.Dispute{
		ID:          uuid.New(),
		ContractID:  contractID,
		RaisedBy:    raisedBy,
		Description: "quality below grade",
		Status:      status,
	}
	if err := conn.Create(&dispute).Error; err != nil {
		t.Fatalf("seed dispute: %v", err)
	}
	return dispute
}
