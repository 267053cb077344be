package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig describes the cart session database. An empty URI means cart
// sessions are not kept in MongoDB.
type MongoConfig struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	PingTimeout            time.Duration
}

// ConnectMongoDB opens a client and checks the server answers before handing
// out the database. The client is disconnected again if it does not.
func ConnectMongoDB(ctx context.Context, cfg MongoConfig) (*mongo.Database, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, errors.New("mongodb uri and database are required")
	}
	if cfg.MinPoolSize > cfg.MaxPoolSize && cfg.MaxPoolSize != 0 {
		return nil, fmt.Errorf("mongodb min pool size %d exceeds max %d", cfg.MinPoolSize, cfg.MaxPoolSize)
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.ServerSelectionTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	clientOpts.SetMinPoolSize(cfg.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		disconnectCtx, cancelDisconnect := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancelDisconnect()
		if derr := client.Disconnect(disconnectCtx); derr != nil {
			err = errors.Join(err, fmt.Errorf("disconnect: %w", derr))
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(cfg.Database), nil
}
