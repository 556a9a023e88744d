package mongo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bombsimon/logrusr/v4"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mongo2csv/internal/common"
	"mongo2csv/internal/retry"
)

// ConnectionConfig is the subset of configuration needed to reach MongoDB.
type ConnectionConfig interface {
	GetMongoURI() string
	GetConnectTimeout() time.Duration
}

// Client owns a MongoDB connection pool. Close disconnects exactly once.
type Client struct {
	*mongo.Client

	closeOnce sync.Once
	closeErr  error
}

// maxLoggedDocumentLength truncates commands and replies in driver debug logs.
const maxLoggedDocumentLength = 512

// Option configures Connect.
type Option func(*options.ClientOptions)

// WithDriverLogger routes the driver's command log to logger when it is at debug level.
func WithDriverLogger(logger *logrus.Logger) Option {
	return func(opts *options.ClientOptions) {
		if logger == nil || !logger.IsLevelEnabled(logrus.DebugLevel) {
			return
		}
		loggerOptions := options.
			Logger().
			SetSink(logrusr.New(logger).GetSink()).
			SetMaxDocumentLength(maxLoggedDocumentLength).
			SetComponentLevel(options.LogComponentCommand, options.LogLevelDebug)
		opts.SetLoggerOptions(loggerOptions)
	}
}

// Connect establishes a connection to MongoDB and verifies it with a ping.
func Connect(ctx context.Context, cfg ConnectionConfig, opts ...Option) (*Client, error) {
	timeout := cfg.GetConnectTimeout()
	clientOpts := options.Client().
		ApplyURI(cfg.GetMongoURI()).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	for _, opt := range opts {
		opt(clientOpts)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &common.DatabaseConnectionError{Database: "MongoDB", Reason: err.Error(), Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		// The pool was created, release it before reporting the failure.
		_ = client.Disconnect(context.Background())
		return nil, &common.DatabaseConnectionError{Database: "MongoDB", Reason: "ping failed: " + err.Error(), Err: &pingError{err: err}}
	}

	return &Client{Client: client}, nil
}

// pingError marks a failure to reach a server, as opposed to a bad client configuration.
type pingError struct {
	err error
}

func (e *pingError) Error() string { return e.err.Error() }
func (e *pingError) Unwrap() error { return e.err }

// IsRetryable reports whether a Connect error may succeed on another attempt.
func IsRetryable(err error) bool {
	var pe *pingError
	return errors.As(err, &pe)
}

// ConnectWithRetry calls Connect until it succeeds, fails with an error that
// IsRetryable rejects, or policy runs out of retries.
func ConnectWithRetry(ctx context.Context, cfg ConnectionConfig, policy *retry.Policy, opts ...Option) (*Client, error) {
	p := *policy
	p.Retryable = IsRetryable
	var client *Client
	err := retry.Do(ctx, &p, func(ctx context.Context) error {
		c, err := Connect(ctx, cfg, opts...)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Close disconnects the client. Calls after the first return the first result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if err := c.Disconnect(ctx); err != nil {
			c.closeErr = &common.DatabaseConnectionError{Database: "MongoDB", Reason: "disconnect failed: " + err.Error(), Err: err}
		}
	})
	return c.closeErr
}
