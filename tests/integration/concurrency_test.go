//go:build integration

// Package integration contains concurrency tests that run against the real docker-compose infrastructure.
// These tests verify race condition handling using real HTTP requests to the API server.
package integration

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentPurchaseLastStock tests race condition prevention for the last
// available unit: given two concurrent purchase requests for a product with
// remaining_amount = 1, exactly one succeeds with 200 and one fails with 400
// (insufficient stock), and remaining_amount ends at exactly 0.
func TestConcurrentPurchaseLastStock(t *testing.T) {
	cleanupTables(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createProductViaAPI(t, "LAST_STOCK_TEST", 1)

	var wg sync.WaitGroup
	results := make(chan int, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(buyerID string) {
			defer wg.Done()
			resp, err := postJSON(formatURL("/api/purchases"), map[string]interface{}{
				"buyer_id":     buyerID,
				"product_name": "LAST_STOCK_TEST",
				"quantity":     1,
			})
			if err != nil {
				t.Logf("HTTP error for %s: %v", buyerID, err)
				results <- 0
				return
			}
			defer resp.Body.Close()
			results <- resp.StatusCode
		}(fmt.Sprintf("buyer_%d", i))
	}

	wg.Wait()
	close(results)

	var successes, insufficientStock, other int
	for code := range results {
		switch code {
		case http.StatusOK:
			successes++
		case http.StatusBadRequest:
			insufficientStock++
		default:
			other++
			t.Logf("Unexpected status code: %d", code)
		}
	}

	assert.Equal(t, 1, successes, "Exactly one purchase should succeed (200)")
	assert.Equal(t, 1, insufficientStock, "Exactly one purchase should fail with 400 (insufficient stock)")
	assert.Equal(t, 0, other, "No other status codes should occur")

	var remainingAmount int
	err := testPool.QueryRow(ctx,
		"SELECT remaining_amount FROM products WHERE name = $1",
		"LAST_STOCK_TEST").Scan(&remainingAmount)
	require.NoError(t, err)
	assert.Equal(t, 0, remainingAmount, "remaining_amount should be exactly 0, not negative")

	var purchaseCount int
	err = testPool.QueryRow(ctx,
		"SELECT COUNT(*) FROM purchases WHERE product_name = $1",
		"LAST_STOCK_TEST").Scan(&purchaseCount)
	require.NoError(t, err)
	assert.Equal(t, 1, purchaseCount, "Exactly 1 purchase record should exist")
}

// TestConcurrentPurchasesSameBuyer tests unique-constraint violation handling:
// given 10 concurrent purchases by the same buyer, exactly one succeeds with
// 200 and the rest fail with 409 Conflict.
func TestConcurrentPurchasesSameBuyer(t *testing.T) {
	cleanupTables(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createProductViaAPI(t, "SAME_BUYER_TEST", 100)

	var wg sync.WaitGroup
	results := make(chan int, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := postJSON(formatURL("/api/purchases"), map[string]interface{}{
				"buyer_id":     "same_buyer",
				"product_name": "SAME_BUYER_TEST",
				"quantity":     1,
			})
			if err != nil {
				t.Logf("HTTP error: %v", err)
				results <- 0
				return
			}
			defer resp.Body.Close()
			results <- resp.StatusCode
		}()
	}

	wg.Wait()
	close(results)

	var successes, alreadyPurchased, other int
	for code := range results {
		switch code {
		case http.StatusOK:
			successes++
		case http.StatusConflict:
			alreadyPurchased++
		default:
			other++
			t.Logf("Unexpected status code: %d", code)
		}
	}

	assert.Equal(t, 1, successes, "Exactly one purchase should succeed (200)")
	assert.Equal(t, 9, alreadyPurchased, "Nine purchases should fail with 409 (already purchased)")
	assert.Equal(t, 0, other, "No other status codes should occur")

	var purchaseCount int
	err := testPool.QueryRow(ctx,
		"SELECT COUNT(*) FROM purchases WHERE buyer_id = $1 AND product_name = $2",
		"same_buyer", "SAME_BUYER_TEST").Scan(&purchaseCount)
	require.NoError(t, err)
	assert.Equal(t, 1, purchaseCount, "Exactly 1 purchase record should exist")

	var remainingAmount int
	err = testPool.QueryRow(ctx,
		"SELECT remaining_amount FROM products WHERE name = $1",
		"SAME_BUYER_TEST").Scan(&remainingAmount)
	require.NoError(t, err)
	assert.Equal(t, 99, remainingAmount, "remaining_amount should be 99")
}

// TestWriterSerialization tests that concurrent writers for distinct buyers on
// the same product are serialized by the coordination-node lock: given
// stock equal to the number of concurrent requests, all of them succeed.
func TestWriterSerialization(t *testing.T) {
	cleanupTables(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	concurrentRequests := 5
	createProductViaAPI(t, "SERIALIZATION_TEST", concurrentRequests)

	var wg sync.WaitGroup
	results := make(chan int, concurrentRequests)

	for i := 0; i < concurrentRequests; i++ {
		wg.Add(1)
		go func(buyerID string) {
			defer wg.Done()
			resp, err := postJSON(formatURL("/api/purchases"), map[string]interface{}{
				"buyer_id":     buyerID,
				"product_name": "SERIALIZATION_TEST",
				"quantity":     1,
			})
			if err != nil {
				t.Logf("HTTP error for %s: %v", buyerID, err)
				results <- 0
				return
			}
			defer resp.Body.Close()
			results <- resp.StatusCode
		}(fmt.Sprintf("buyer_%d", i))
	}

	wg.Wait()
	close(results)

	var successes, failures int
	for code := range results {
		if code == http.StatusOK {
			successes++
		} else {
			failures++
			t.Logf("Unexpected status code: %d", code)
		}
	}

	assert.Equal(t, concurrentRequests, successes, "All purchases should succeed")
	assert.Equal(t, 0, failures, "No purchases should fail")

	var remainingAmount int
	err := testPool.QueryRow(ctx,
		"SELECT remaining_amount FROM products WHERE name = $1",
		"SERIALIZATION_TEST").Scan(&remainingAmount)
	require.NoError(t, err)
	assert.Equal(t, 0, remainingAmount, "remaining_amount should be 0")

	var purchaseCount int
	err = testPool.QueryRow(ctx,
		"SELECT COUNT(*) FROM purchases WHERE product_name = $1",
		"SERIALIZATION_TEST").Scan(&purchaseCount)
	require.NoError(t, err)
	assert.Equal(t, concurrentRequests, purchaseCount, "N purchase records should exist")
}

// TestFlashSaleScenario exercises a realistic flash sale scenario with more
// concurrent requests than available stock.
func TestFlashSaleScenario(t *testing.T) {
	cleanupTables(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	availableStock := 5
	concurrentRequests := 20

	createProductViaAPI(t, "FLASH_SALE", availableStock)

	var wg sync.WaitGroup
	results := make(chan int, concurrentRequests)

	for i := 0; i < concurrentRequests; i++ {
		wg.Add(1)
		go func(buyerID string) {
			defer wg.Done()
			resp, err := postJSON(formatURL("/api/purchases"), map[string]interface{}{
				"buyer_id":     buyerID,
				"product_name": "FLASH_SALE",
				"quantity":     1,
			})
			if err != nil {
				t.Logf("HTTP error for %s: %v", buyerID, err)
				results <- 0
				return
			}
			defer resp.Body.Close()
			results <- resp.StatusCode
		}(fmt.Sprintf("buyer_%d", i))
	}

	wg.Wait()
	close(results)

	var successes, insufficientStock, other int
	for code := range results {
		switch code {
		case http.StatusOK:
			successes++
		case http.StatusBadRequest:
			insufficientStock++
		default:
			other++
			t.Logf("Unexpected status code: %d", code)
		}
	}

	assert.Equal(t, availableStock, successes, "Exactly %d purchases should succeed (200)", availableStock)
	assert.Equal(t, concurrentRequests-availableStock, insufficientStock, "Exactly %d purchases should fail with 400 (insufficient stock)", concurrentRequests-availableStock)
	assert.Equal(t, 0, other, "No other status codes should occur")

	var remainingAmount int
	err := testPool.QueryRow(ctx,
		"SELECT remaining_amount FROM products WHERE name = $1",
		"FLASH_SALE").Scan(&remainingAmount)
	require.NoError(t, err)
	assert.Equal(t, 0, remainingAmount, "remaining_amount should be exactly 0")
	assert.GreaterOrEqual(t, remainingAmount, 0, "remaining_amount should never be negative")

	var purchaseCount int
	err = testPool.QueryRow(ctx,
		"SELECT COUNT(*) FROM purchases WHERE product_name = $1",
		"FLASH_SALE").Scan(&purchaseCount)
	require.NoError(t, err)
	assert.Equal(t, availableStock, purchaseCount, "Exactly %d purchase records should exist", availableStock)
}

// TestTransactionRollbackOnFailure_InsufficientStock verifies that a failed
// purchase (insufficient stock) leaves no partial state: no purchase row is
// created, and remaining_amount is unchanged.
func TestTransactionRollbackOnFailure_InsufficientStock(t *testing.T) {
	cleanupTables(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createProductViaAPI(t, "ZERO_STOCK", 1)

	depleteResp, err := postJSON(formatURL("/api/purchases"), map[string]interface{}{
		"buyer_id":     "buyer_initial",
		"product_name": "ZERO_STOCK",
		"quantity":     1,
	})
	require.NoError(t, err)
	depleteResp.Body.Close()
	require.Equal(t, http.StatusOK, depleteResp.StatusCode)

	resp, err := postJSON(formatURL("/api/purchases"), map[string]interface{}{
		"buyer_id":     "buyer_001",
		"product_name": "ZERO_STOCK",
		"quantity":     1,
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "Should return 400 Bad Request for insufficient stock")

	var purchaseCount int
	err = testPool.QueryRow(ctx,
		"SELECT COUNT(*) FROM purchases WHERE buyer_id = $1 AND product_name = $2",
		"buyer_001", "ZERO_STOCK").Scan(&purchaseCount)
	require.NoError(t, err)
	assert.Equal(t, 0, purchaseCount, "No purchase record should exist after rollback")

	var remainingAmount int
	err = testPool.QueryRow(ctx,
		"SELECT remaining_amount FROM products WHERE name = $1",
		"ZERO_STOCK").Scan(&remainingAmount)
	require.NoError(t, err)
	assert.Equal(t, 0, remainingAmount, "remaining_amount should be unchanged at 0")
}
