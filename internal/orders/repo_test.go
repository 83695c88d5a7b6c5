package orders

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectibles-inventory/internal/catalog"
	"collectibles-inventory/internal/ledger"
)

const (
	selectProductForUpdate = `SELECT id, name, price, stock_available FROM products WHERE sku=$1 FOR UPDATE`
	selectAllocated        = `FROM order_items oi`
)

func productRow(stock int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "price", "stock_available"}).
		AddRow("11111111-1111-1111-1111-111111111111", "Chrome Dragon #7", decimal.RequireFromString("45.00"), stock)
}

func TestCreateReservesInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProductForUpdate)).
		WithArgs("DRG-007").
		WillReturnRows(productRow(10))
	mock.ExpectQuery(selectAllocated).
		WithArgs("DRG-007", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "Ada", "ada@example.com", "",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"", "", "in_stock", "pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(pgxmock.AnyArg(), "11111111-1111-1111-1111-111111111111", "DRG-007",
			"Chrome Dragon #7", 3, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inventory_logs").
		WithArgs("DRG-007", "reservation", -3, 10, "order", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := &Repo{DB: mock}
	orderID, total, err := repo.Create(context.Background(), CreateInput{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		OrderType:     TypeInStock,
		Items:         []ItemInput{{SKU: "DRG-007", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^ORD-`, orderID)
	// 3 x 45.00 = 135.00, free shipping above 100
	assert.True(t, total.Equal(decimal.RequireFromString("135.00")), "total %s", total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateKeepsRequestItemOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// rows lock in SKU order regardless of how the request lists the items
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProductForUpdate)).
		WithArgs("AAA-001").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price", "stock_available"}).
			AddRow("22222222-2222-2222-2222-222222222222", "Alpha Figure", decimal.RequireFromString("10.00"), 10))
	mock.ExpectQuery(selectAllocated).
		WithArgs("AAA-001", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(selectProductForUpdate)).
		WithArgs("ZZZ-009").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price", "stock_available"}).
			AddRow("33333333-3333-3333-3333-333333333333", "Zeta Figure", decimal.RequireFromString("20.00"), 10))
	mock.ExpectQuery(selectAllocated).
		WithArgs("ZZZ-009", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// item rows persist in the order the customer sent them
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(pgxmock.AnyArg(), "33333333-3333-3333-3333-333333333333", "ZZZ-009",
			"Zeta Figure", 2, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inventory_logs").
		WithArgs("ZZZ-009", "reservation", -2, 10, "order", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(pgxmock.AnyArg(), "22222222-2222-2222-2222-222222222222", "AAA-001",
			"Alpha Figure", 1, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inventory_logs").
		WithArgs("AAA-001", "reservation", -1, 10, "order", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := &Repo{DB: mock}
	_, total, err := repo.Create(context.Background(), CreateInput{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		OrderType:     TypeInStock,
		Items: []ItemInput{
			{SKU: "ZZZ-009", Quantity: 2},
			{SKU: "AAA-001", Quantity: 1},
		},
	})
	require.NoError(t, err)
	// 2 x 20.00 + 1 x 10.00 + 15.99 shipping
	assert.True(t, total.Equal(decimal.RequireFromString("65.99")), "total %s", total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAddsFlatShippingBelowThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProductForUpdate)).
		WithArgs("DRG-007").
		WillReturnRows(productRow(10))
	mock.ExpectQuery(selectAllocated).
		WithArgs("DRG-007", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inventory_logs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := &Repo{DB: mock}
	_, total, err := repo.Create(context.Background(), CreateInput{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		OrderType:     TypeInStock,
		Items:         []ItemInput{{SKU: "DRG-007", Quantity: 1}},
	})
	require.NoError(t, err)
	// 45.00 + 15.99
	assert.True(t, total.Equal(decimal.RequireFromString("60.99")), "total %s", total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsufficientStockRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProductForUpdate)).
		WithArgs("DRG-007").
		WillReturnRows(productRow(10))
	mock.ExpectQuery(selectAllocated).
		WithArgs("DRG-007", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectRollback()

	repo := &Repo{DB: mock}
	_, _, err = repo.Create(context.Background(), CreateInput{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		OrderType:     TypeInStock,
		Items:         []ItemInput{{SKU: "DRG-007", Quantity: 8}},
	})

	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "DRG-007", insufficient.SKU)
	assert.Equal(t, 8, insufficient.Requested)
	assert.Equal(t, 7, insufficient.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUnknownSKU(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProductForUpdate)).
		WithArgs("NOPE").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	repo := &Repo{DB: mock}
	_, _, err = repo.Create(context.Background(), CreateInput{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		OrderType:     TypeInStock,
		Items:         []ItemInput{{SKU: "NOPE", Quantity: 1}},
	})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePreorderSkipsAvailabilityCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProductForUpdate)).
		WithArgs("DRG-007").
		WillReturnRows(productRow(0)) // nothing physically in stock
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// no reservation log entry for preorders
	mock.ExpectCommit()

	repo := &Repo{DB: mock}
	_, _, err = repo.Create(context.Background(), CreateInput{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		OrderType:     TypePreorder,
		Items:         []ItemInput{{SKU: "DRG-007", Quantity: 5}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateValidatesInput(t *testing.T) {
	repo := &Repo{DB: nil} // must fail before touching storage

	_, _, err := repo.Create(context.Background(), CreateInput{})
	assert.ErrorIs(t, err, ErrNoItems)

	_, _, err = repo.Create(context.Background(), CreateInput{
		Items: []ItemInput{{SKU: "DRG-007", Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUpdateStatusNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, order_type FROM orders").
		WithArgs("ORD-missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	repo := &Repo{DB: mock}
	err = repo.UpdateStatus(context.Background(), "ORD-missing", StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusCancelWritesReleaseEntries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, order_type FROM orders").
		WithArgs("ORD-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "order_type"}).AddRow("pending", "in_stock"))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("cancelled", "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT sku, quantity FROM order_items").
		WithArgs("ORD-1").
		WillReturnRows(pgxmock.NewRows([]string{"sku", "quantity"}).AddRow("DRG-007", 3))
	mock.ExpectQuery("SELECT stock_available FROM products").
		WithArgs("DRG-007").
		WillReturnRows(pgxmock.NewRows([]string{"stock_available"}).AddRow(10))
	mock.ExpectExec("INSERT INTO inventory_logs").
		WithArgs("DRG-007", "release", 3, 10, "order", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := &Repo{DB: mock}
	require.NoError(t, repo.UpdateStatus(context.Background(), "ORD-1", StatusCancelled))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusCancelTerminalOrderSkipsRelease(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, order_type FROM orders").
		WithArgs("ORD-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "order_type"}).AddRow("shipped", "in_stock"))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("cancelled", "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := &Repo{DB: mock}
	require.NoError(t, repo.UpdateStatus(context.Background(), "ORD-1", StatusCancelled))
	assert.NoError(t, mock.ExpectationsWereMet())
}
