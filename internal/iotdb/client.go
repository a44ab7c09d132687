package iotdb

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cosray/backend/config"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	insertRecordsPath = "/rest/v2/insertRecords"
	insertTabletPath  = "/rest/table/v1/insertTablet"
	successCode       = 200
)

// Writer persists records for one device or table.
type Writer interface {
	WriteRecords(ctx context.Context, target string, records []Record) error
}

// Client talks to the IoTDB REST service. Nodes are tried in order and the
// next one is used only when the previous could not be reached.
type Client struct {
	http        *resty.Client
	nodes       []string
	dialect     string
	database    string
	tablePrefix string
	compress    bool
	log         zerolog.Logger
}

// New validates cfg and builds a client. No request is made.
func New(cfg config.IoTDBConfig, log zerolog.Logger) (*Client, error) {
	dialect := strings.ToLower(strings.TrimSpace(cfg.SQLDialect))
	if dialect == "" {
		dialect = DialectTree
	}
	if dialect != DialectTree && dialect != DialectTable {
		return nil, fmt.Errorf("%w: unsupported sql dialect %q", ErrConfiguration, cfg.SQLDialect)
	}
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("%w: pool size must be positive, got %d", ErrConfiguration, cfg.PoolSize)
	}
	if cfg.PoolWaitTimeoutMs <= 0 {
		return nil, fmt.Errorf("%w: pool wait timeout must be positive, got %d", ErrConfiguration, cfg.PoolWaitTimeoutMs)
	}
	if cfg.MaxRetry < 0 {
		return nil, fmt.Errorf("%w: max retry cannot be negative", ErrConfiguration)
	}
	if dialect == DialectTable && strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("%w: table dialect requires a database", ErrConfiguration)
	}

	nodes := nodeURLs(cfg)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no iotdb node configured", ErrConfiguration)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.PoolSize
	transport.MaxIdleConnsPerHost = cfg.PoolSize

	client := resty.New().
		SetTransport(transport).
		SetBasicAuth(cfg.Username, cfg.Password).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.MaxRetry).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Duration(cfg.PoolWaitTimeoutMs) * time.Millisecond)

	if cfg.ConnectionTimeoutMs > 0 {
		client.SetTimeout(time.Duration(cfg.ConnectionTimeoutMs) * time.Millisecond)
	}
	if cfg.UseSSL && cfg.CACerts != "" {
		client.SetRootCertificate(cfg.CACerts)
	}

	return &Client{
		http:        client,
		nodes:       nodes,
		dialect:     dialect,
		database:    strings.TrimSpace(cfg.Database),
		tablePrefix: cfg.TableNamePrefix,
		compress:    cfg.EnableCompression,
		log:         log.With().Str("component", "iotdb").Logger(),
	}, nil
}

// Dialect returns the configured SQL dialect.
func (c *Client) Dialect() string {
	return c.dialect
}

// WriteRecords inserts records for target, a device path in the tree dialect
// or a table name in the table dialect.
func (c *Client) WriteRecords(ctx context.Context, target string, records []Record) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: records must contain at least one element", ErrInvalidRecords)
	}

	var (
		path string
		body any
	)
	switch c.dialect {
	case DialectTable:
		table, err := resolveTableName(target, c.tablePrefix)
		if err != nil {
			return err
		}
		req, err := buildInsertTablet(c.database, table, records)
		if err != nil {
			return err
		}
		path, body = insertTabletPath, req
		target = table
	default:
		req, err := buildInsertRecords(target, records)
		if err != nil {
			return err
		}
		path, body = insertRecordsPath, req
	}

	if err := c.post(ctx, path, body); err != nil {
		c.log.Error().
			Err(err).
			Str("target", target).
			Str("dialect", c.dialect).
			Int("records", len(records)).
			Msg("failed to write records to iotdb")
		return err
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrInvalidRecords, err)
	}

	var encoding string
	if c.compress {
		payload, err = gzipBytes(payload)
		if err != nil {
			return fmt.Errorf("%w: compress request: %v", ErrWrite, err)
		}
		encoding = "gzip"
	}

	var lastErr error
	for _, node := range c.nodes {
		req := c.http.R().
			SetContext(ctx).
			SetBody(payload)
		if encoding != "" {
			req.SetHeader("Content-Encoding", encoding)
		}

		resp, err := req.Post(node + path)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrWrite, ctx.Err())
			}
			c.log.Warn().Err(err).Str("node", node).Msg("iotdb node unreachable")
			lastErr = err
			continue
		}
		return checkStatus(resp)
	}
	return fmt.Errorf("%w: %v", ErrWrite, lastErr)
}

func checkStatus(resp *resty.Response) error {
	var status statusResponse
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("%w: http status %d", ErrWrite, resp.StatusCode())
		}
		return fmt.Errorf("%w: decode response: %v", ErrWrite, err)
	}
	if resp.StatusCode() != http.StatusOK || status.Code != successCode {
		return fmt.Errorf("%w: code %d: %s", ErrWrite, status.Code, status.Message)
	}
	return nil
}

func nodeURLs(cfg config.IoTDBConfig) []string {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	raw := cfg.NodeURLs
	if len(raw) == 0 && strings.TrimSpace(cfg.Host) != "" {
		raw = []string{fmt.Sprintf("%s:%d", strings.TrimSpace(cfg.Host), cfg.RESTPort)}
	}

	nodes := make([]string, 0, len(raw))
	for _, node := range raw {
		node = strings.TrimRight(strings.TrimSpace(node), "/")
		if node == "" {
			continue
		}
		if !strings.Contains(node, "://") {
			node = scheme + "://" + node
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
