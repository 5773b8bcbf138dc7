// Command seed inserts demo data for local development: a handful of
// addresses with cached risk verdicts in various states, a customer flag
// and one completed order. Run it against a freshly migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "postgres")
	dbPassword := getEnv("DB_PASSWORD", "postgres")
	dbName := getEnv("DB_NAME", "computop_checkout")
	sslMode := getEnv("DB_SSL_MODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, sslMode)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	if err := seedAddresses(ctx, pool); err != nil {
		log.Fatalf("seed addresses: %v", err)
	}
	if err := seedCustomerFlags(ctx, pool); err != nil {
		log.Fatalf("seed customer flags: %v", err)
	}
	if err := seedOrder(ctx, pool); err != nil {
		log.Fatalf("seed order: %v", err)
	}

	log.Println("demo data seeded")
}

// seedAddresses covers the verdict cache states the service distinguishes:
// a fresh GREEN, a stale FAILED that is due for a retry, an unchecked
// address and one outside the scored markets.
func seedAddresses(ctx context.Context, pool *pgxpool.Pool) error {
	type row struct {
		id         int64
		addrType   string
		customerID string
		street     string
		city       string
		zip        string
		country    string
		crifStatus string
		crifResult string
		checkedAgo time.Duration
	}

	rows := []row{
		{1001, "billing", "demo-customer-1", "Musterweg 1", "Berlin", "10115", "DE", "OK", "GREEN", 30 * time.Minute},
		{1002, "billing", "demo-customer-2", "Hauptstrasse 9", "Wien", "1010", "AT", "FAILED", "", 3 * time.Hour},
		{1003, "shipping", "demo-customer-1", "Musterweg 1", "Berlin", "10115", "DE", "", "", 0},
		{1004, "billing", "demo-customer-3", "5th Avenue 12", "New York", "10001", "US", "", "", 0},
	}

	for _, r := range rows {
		var checkedAt *time.Time
		if r.crifStatus != "" {
			t := time.Now().UTC().Add(-r.checkedAgo)
			checkedAt = &t
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO addresses (id, type, customer_id, street, city, zip, country_iso,
				crif_status, crif_result, crif_checked_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)
			ON CONFLICT (id, type) DO NOTHING`,
			r.id, r.addrType, r.customerID, r.street, r.city, r.zip, r.country,
			r.crifStatus, r.crifResult, checkedAt,
		)
		if err != nil {
			return fmt.Errorf("address %d: %w", r.id, err)
		}
	}
	return nil
}

func seedCustomerFlags(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO customer_flags (customer_id, initial_payment_done)
		VALUES ('demo-customer-1', TRUE)
		ON CONFLICT (customer_id) DO NOTHING`)
	return err
}

func seedOrder(ctx context.Context, pool *pgxpool.Pool) error {
	var orderNumber string
	err := pool.QueryRow(ctx, `
		INSERT INTO orders (amount, currency, customer_id, payment_method, status,
			billing_address_id, shipping_address_id, transaction_id, pay_id)
		VALUES (49.99, 'EUR', 'demo-customer-1', 'creditcard', 'RESOLVED_OK',
			1001, 1003, $1, $2)
		RETURNING order_number`,
		"demo-"+uuid.NewString()[:8], uuid.NewString(),
	).Scan(&orderNumber)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO transactions (id, order_number, trans_id, pay_id, status, card_brand, card_expiry)
		SELECT $1, $2, transaction_id, pay_id, 'AUTHORIZED', 'VISA', '202812'
		FROM orders WHERE order_number = $2
		ON CONFLICT (trans_id) DO NOTHING`,
		uuid.New(), orderNumber,
	)
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
