package elasticsearch

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

type Client struct {
	es     *elasticsearch.Client
	logger *zap.Logger
}

type Config struct {
	Addresses []string
	Username  string
	Password  string
	Indexs    map[string]map[string]interface{} // indexName -> mapping
}

// BulkOperation 批量操作的结构
type BulkOperation struct {
	Action   string                 `json:"action"` // index, create, delete
	Index    string                 `json:"index"`
	ID       string                 `json:"id"`
	Document map[string]interface{} `json:"document"`
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	client := &Client{
		es:     es,
		logger: log,
	}

	for indexName, mapping := range cfg.Indexs {
		if err := client.CreateIndex(context.Background(), indexName, mapping); err != nil {
			log.Error("Failed to initialize ES index", zap.String("index", indexName), zap.Error(err))
		}
	}

	return client, nil
}

// buildBulkBody 生成 NDJSON 请求体
func buildBulkBody(operations []BulkOperation) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	for _, op := range operations {
		meta := map[string]interface{}{"_index": op.Index}
		if op.ID != "" {
			meta["_id"] = op.ID
		}
		actionBytes, err := sonic.Marshal(map[string]interface{}{op.Action: meta})
		if err != nil {
			return nil, err
		}
		buf.Write(actionBytes)
		buf.WriteByte('\n')

		if op.Action == "delete" || op.Document == nil {
			continue
		}
		docBytes, err := sonic.Marshal(op.Document)
		if err != nil {
			return nil, err
		}
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}
	return &buf, nil
}

// BulkWrite 批量写入
func (c *Client) BulkWrite(ctx context.Context, operations []BulkOperation) error {
	if len(operations) == 0 {
		return nil
	}

	body, err := buildBulkBody(operations)
	if err != nil {
		return fmt.Errorf("build bulk body: %w", err)
	}

	res, err := esapi.BulkRequest{Body: body}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk operation failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk operation error: %s", res.String())
	}

	c.logger.Debug("Bulk write operation completed", zap.Int("operations", len(operations)))
	return nil
}

// CreateIndex 创建索引，已存在不报错
func (c *Client) CreateIndex(ctx context.Context, indexName string, mapping map[string]interface{}) error {
	mappingJSON, err := sonic.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{
		Index: indexName,
		Body:  bytes.NewReader(mappingJSON),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("failed to create index: %s", res.String())
	}

	c.logger.Info("Index created or already exists", zap.String("index", indexName))
	return nil
}
