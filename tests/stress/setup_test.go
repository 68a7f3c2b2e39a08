package stress

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/scalable-coupon-system/internal/handler"
	"github.com/fairyhunter13/scalable-coupon-system/internal/lock"
	"github.com/fairyhunter13/scalable-coupon-system/internal/redisconn"
	"github.com/fairyhunter13/scalable-coupon-system/internal/repository"
	"github.com/fairyhunter13/scalable-coupon-system/internal/reservation"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
	"github.com/fairyhunter13/scalable-coupon-system/internal/stockkv"
	customvalidator "github.com/fairyhunter13/scalable-coupon-system/internal/validator"
)

var (
	testPool    *pgxpool.Pool
	testRedis   *redis.Client
	testStock   *stockkv.AtomicStock
	testApp     *fiber.App
	coordinator *reservation.Coordinator
)

func TestMain(m *testing.M) {
	dockerPool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	if err := dockerPool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	pgResource, err := dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_USER=testuser",
			"POSTGRES_DB=testdb",
			"listen_addresses='*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start postgres resource: %s", err)
	}
	_ = pgResource.Expire(180)

	redisResource, err := dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start redis resource: %s", err)
	}
	_ = redisResource.Expire(180)

	databaseURL := fmt.Sprintf("postgres://testuser:testpass@%s/testdb?sslmode=disable", pgResource.GetHostPort("5432/tcp"))
	redisAddr := redisResource.GetHostPort("6379/tcp")

	log.Println("Connecting to database on url:", databaseURL)
	log.Println("Connecting to coordination node on addr:", redisAddr)

	dockerPool.MaxWait = 120 * time.Second
	if err = dockerPool.Retry(func() error {
		var err error
		testPool, err = pgxpool.New(context.Background(), databaseURL)
		if err != nil {
			return err
		}
		return testPool.Ping(context.Background())
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	if err = dockerPool.Retry(func() error {
		testRedis = redis.NewClient(&redis.Options{Addr: redisAddr})
		return testRedis.Ping(context.Background()).Err()
	}); err != nil {
		log.Fatalf("Could not connect to coordination node: %s", err)
	}

	if err := runMigrations(testPool); err != nil {
		log.Fatalf("Could not run migrations: %s", err)
	}

	buildTestApp()

	code := m.Run()

	if err := dockerPool.Purge(pgResource); err != nil {
		log.Fatalf("Could not purge postgres resource: %s", err)
	}
	if err := dockerPool.Purge(redisResource); err != nil {
		log.Fatalf("Could not purge redis resource: %s", err)
	}

	os.Exit(code)
}

// buildTestApp wires the full single-node stack (lock, atomic stock,
// reservation coordinator, repositories, HTTP handlers) the same way
// cmd/api/main.go does, against the dockertest-provisioned containers.
func buildTestApp() {
	testStock = stockkv.New(testRedis, "test-node")
	singleLock := lock.NewSingleNodeLock(testRedis, "test-node")
	locker := reservation.NewSingleNodeLocker(singleLock)

	productRepo := repository.NewProductRepository(testPool)
	purchaseRepo := repository.NewPurchaseRepository(testPool)

	coordinator = reservation.New(
		locker,
		[]*stockkv.AtomicStock{testStock},
		productRepo,
		purchaseRepo,
		5*time.Second,
		50*time.Millisecond,
		500*time.Millisecond,
		5,
		10*time.Millisecond,
		200*time.Millisecond,
	)

	stockSeeders := []service.StockSeeder{testStock}
	productService := service.NewProductService(productRepo, purchaseRepo, stockSeeders)

	validate := customvalidator.New()
	productHandler := handler.NewProductHandler(productService, validate)
	purchaseHandler := handler.NewPurchaseHandler(coordinator, validate)

	testApp = fiber.New()
	testApp.Post("/api/products", productHandler.CreateProduct)
	testApp.Get("/api/products/:name", productHandler.GetProduct)
	testApp.Post("/api/purchases", purchaseHandler.CreatePurchase)
}

func runMigrations(pool *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			amount INTEGER NOT NULL CHECK (amount > 0),
			remaining_amount INTEGER NOT NULL CHECK (remaining_amount >= 0),
			price_cents BIGINT NOT NULL DEFAULT 0 CHECK (price_cents >= 0),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS purchases (
			id SERIAL PRIMARY KEY,
			buyer_id VARCHAR(255) NOT NULL,
			product_name VARCHAR(255) NOT NULL REFERENCES products(name),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			total_price_cents BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE(buyer_id, product_name)
		);

		CREATE INDEX IF NOT EXISTS idx_purchases_product_name ON purchases(product_name);
	`
	_, err := pool.Exec(context.Background(), schema)
	return err
}

func cleanupTables(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := testPool.Exec(ctx, "TRUNCATE TABLE purchases, products CASCADE"); err != nil {
		t.Fatalf("Failed to cleanup tables: %v", err)
	}
	if err := testRedis.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush coordination node: %v", err)
	}
}

// createTestProduct creates a product durably and seeds its coordination-node
// stock counter, mirroring what service.ProductService.Create does.
func createTestProduct(t *testing.T, name string, amount int) {
	t.Helper()
	ctx := context.Background()
	_, err := testPool.Exec(ctx,
		"INSERT INTO products (name, amount, remaining_amount) VALUES ($1, $2, $2)",
		name, amount)
	if err != nil {
		t.Fatalf("Failed to create test product: %v", err)
	}
	if err := testStock.Seed(ctx, "stock:"+name, int64(amount), 0); err != nil {
		t.Fatalf("Failed to seed test product stock: %v", err)
	}
}

func getProductFromDB(t *testing.T, name string) (remainingAmount int, purchaseCount int) {
	t.Helper()
	ctx := context.Background()

	if err := testPool.QueryRow(ctx,
		"SELECT remaining_amount FROM products WHERE name = $1", name).Scan(&remainingAmount); err != nil {
		t.Fatalf("Failed to get product remaining_amount: %v", err)
	}
	if err := testPool.QueryRow(ctx,
		"SELECT COUNT(*) FROM purchases WHERE product_name = $1", name).Scan(&purchaseCount); err != nil {
		t.Fatalf("Failed to get purchase count: %v", err)
	}
	return remainingAmount, purchaseCount
}

func getUniqueBuyers(t *testing.T, productName string) int {
	t.Helper()
	var count int
	err := testPool.QueryRow(context.Background(),
		"SELECT COUNT(DISTINCT buyer_id) FROM purchases WHERE product_name = $1", productName).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to get unique buyer count: %v", err)
	}
	return count
}
