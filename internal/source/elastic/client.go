package elastic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/siemhub/orchestrator/internal/domain"
)

// Document is one hit returned from a search: the document identifier and the
// raw source body.
type Document struct {
	ID     string
	Source map[string]interface{}
}

// Client is a thin Elasticsearch HTTP client covering the operations the sync
// engine needs: search with pagination, mapping retrieval, and reachability
// checks.
type Client struct {
	client  *resty.Client
	baseURL string
}

// Config holds connection parameters for an Elasticsearch cluster.
type Config struct {
	Host     string
	User     string
	Password string
	Timeout  time.Duration
}

// NewClient creates an Elasticsearch client from explicit configuration.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Password)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Client{
		client:  client,
		baseURL: strings.TrimRight(cfg.Host, "/"),
	}
}

// FromIntegration builds a client from a stored elasticsearch integration.
func FromIntegration(it *domain.Integration, timeout time.Duration) (*Client, error) {
	if it.Kind != domain.IntegrationElasticsearch {
		return nil, domain.Validationf("integration %q is %s, not elasticsearch", it.Name, it.Kind)
	}
	host := it.Config.String("host")
	if host == "" {
		host = it.Config.String("url")
	}
	if host == "" {
		return nil, domain.Validationf("integration %q has no host configured", it.Name)
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return NewClient(&Config{
		Host:     host,
		User:     it.Config.String("user"),
		Password: it.Config.String("password"),
		Timeout:  timeout,
	}), nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string                 `json:"_id"`
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Error *esError `json:"error,omitempty"`
}

type esError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e *esError) String() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

// Ping verifies the cluster is reachable and responding.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get(c.baseURL)
	if err != nil {
		return domain.Connectionf("elasticsearch ping", err)
	}
	if resp.StatusCode() >= 400 {
		return domain.Connectionf("elasticsearch ping",
			fmt.Errorf("status %d", resp.StatusCode()))
	}
	return nil
}

// Search executes a query against an index with from/size pagination and
// returns the hits of the page. A nil query matches all documents.
func (c *Client) Search(ctx context.Context, index string, query map[string]interface{}, size, from int) ([]Document, error) {
	body := map[string]interface{}{
		"size": size,
		"from": from,
	}
	if query != nil {
		body["query"] = query
	}

	var result searchResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("%s/%s/_search", c.baseURL, index))
	if err != nil {
		return nil, domain.Connectionf("elasticsearch search", err)
	}
	if resp.StatusCode() != 200 {
		if result.Error != nil {
			return nil, domain.Connectionf("elasticsearch search",
				fmt.Errorf("status %d: %s", resp.StatusCode(), result.Error.String()))
		}
		return nil, domain.Connectionf("elasticsearch search",
			fmt.Errorf("status %d", resp.StatusCode()))
	}

	docs := make([]Document, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		docs = append(docs, Document{ID: hit.ID, Source: hit.Source})
	}
	return docs, nil
}

// Sample returns up to size documents matching all, used for schema inference
// and index previews.
func (c *Client) Sample(ctx context.Context, index string, size int) ([]Document, error) {
	return c.Search(ctx, index, nil, size, 0)
}

// FieldMapping returns the top-level field types of an index mapping, field
// name to Elasticsearch type. Sub-objects of object/nested fields are not
// flattened; those fields report their container type.
func (c *Client) FieldMapping(ctx context.Context, index string) (map[string]string, error) {
	var result map[string]interface{}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("%s/%s/_mapping", c.baseURL, index))
	if err != nil {
		return nil, domain.Connectionf("elasticsearch mapping", err)
	}
	if resp.StatusCode() != 200 {
		return nil, domain.Connectionf("elasticsearch mapping",
			fmt.Errorf("status %d", resp.StatusCode()))
	}

	fields := map[string]string{}
	// Response shape: { "<concrete index>": { "mappings": { "properties": {...} } } }
	for _, raw := range result {
		indexBody, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		mappings, ok := indexBody["mappings"].(map[string]interface{})
		if !ok {
			continue
		}
		props, ok := mappings["properties"].(map[string]interface{})
		if !ok {
			continue
		}
		for field, rawDef := range props {
			def, ok := rawDef.(map[string]interface{})
			if !ok {
				continue
			}
			if t, ok := def["type"].(string); ok {
				fields[field] = t
			} else if _, ok := def["properties"]; ok {
				fields[field] = "object"
			}
		}
	}
	return fields, nil
}
