package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"ledger-api/internal/config"
	"ledger-api/internal/repository"
)

type Database struct {
	MongoDB      *mongo.Database
	RedisDB      *redis.Client
	Repositories *Repositories
}

type Repositories struct {
	Profile      repository.ProfileRepository
	Transaction  repository.TransactionRepository
	Investment   repository.InvestmentRepository
	Commission   repository.CommissionRepository
	Checkin      repository.CheckinRepository
	Notification repository.NotificationRepository
	Role         repository.RoleRepository
}

func Initialize(ctx context.Context, cfg *config.Config) (*Database, error) {
	mongoDB, err := initializeMongoDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
	}

	redisDB, err := initializeRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	repos := &Repositories{
		Profile:      repository.NewProfileRepository(mongoDB),
		Transaction:  repository.NewTransactionRepository(mongoDB),
		Investment:   repository.NewInvestmentRepository(mongoDB),
		Commission:   repository.NewCommissionRepository(mongoDB),
		Checkin:      repository.NewCheckinRepository(mongoDB),
		Notification: repository.NewNotificationRepository(mongoDB),
		Role:         repository.NewRoleRepository(mongoDB),
	}

	// The unique indexes are load-bearing: accrual idempotency, checkin
	// uniqueness and webhook correlation all depend on them, so startup fails
	// if they cannot be created.
	if err := createIndexes(ctx, repos); err != nil {
		return nil, fmt.Errorf("failed to create database indexes: %w", err)
	}

	return &Database{
		MongoDB:      mongoDB,
		RedisDB:      redisDB,
		Repositories: repos,
	}, nil
}

func initializeMongoDB(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Database, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetRegistry(MongoRegistry()).
		SetMaxPoolSize(uint64(cfg.MaxPoolSize)).
		SetMinPoolSize(uint64(cfg.MinPoolSize)).
		SetMaxConnIdleTime(cfg.MaxIdleTime).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetSocketTimeout(cfg.SocketTimeout).
		SetServerSelectionTimeout(cfg.SelectionTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(cfg.Database), nil
}

func initializeRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConnections,
		DialTimeout:  cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func createIndexes(ctx context.Context, repos *Repositories) error {
	indexed := []interface {
		CreateIndexes(ctx context.Context) error
	}{
		repos.Profile,
		repos.Transaction,
		repos.Investment,
		repos.Commission,
		repos.Checkin,
		repos.Notification,
		repos.Role,
	}

	for _, repo := range indexed {
		if err := repo.CreateIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) Close(ctx context.Context) error {
	var errs []error

	if db.MongoDB != nil {
		if err := db.MongoDB.Client().Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MongoDB: %w", err))
		}
	}
	if db.RedisDB != nil {
		if err := db.RedisDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing database connections: %v", errs)
	}
	return nil
}

func (db *Database) PingMongo(ctx context.Context) error {
	return db.MongoDB.Client().Ping(ctx, readpref.Primary())
}

func (db *Database) PingRedis(ctx context.Context) error {
	return db.RedisDB.Ping(ctx).Err()
}
