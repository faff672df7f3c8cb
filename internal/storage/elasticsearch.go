package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// listLimit caps List; ES refuses deeper pages without scrolling
const listLimit = 10000

// ElasticsearchStore keeps snapshots as documents keyed by snapshot key
type ElasticsearchStore struct {
	client    *elasticsearch.Client
	indexName string
}

type esDocument struct {
	Key string `json:"key"`
	*domain.StoredSnapshot
}

// NewElasticsearchStore creates a client and checks the connection
func NewElasticsearchStore(addresses []string, indexName string) (*ElasticsearchStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create es client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("es error: %s", res.Status())
	}

	if indexName == "" {
		indexName = "scrape-snapshots"
	}
	return &ElasticsearchStore{client: client, indexName: indexName}, nil
}

// EnsureIndex creates the index if it doesn't exist. Row cells are stored
// but not indexed since their keys contain spaces and vary by mode.
func (e *ElasticsearchStore) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := `{
		"mappings": {
			"properties": {
				"key": {"type": "keyword"},
				"timestamp": {"type": "date"},
				"url": {"type": "keyword"},
				"totalElements": {"type": "integer"},
				"headers": {"type": "keyword"},
				"data": {"type": "object", "enabled": false}
			}
		}
	}`

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index error: %s", res.Status())
	}
	return nil
}

func (e *ElasticsearchStore) Save(ctx context.Context, s *domain.StoredSnapshot) (string, error) {
	key := s.Key()
	data, err := json.Marshal(esDocument{Key: key, StoredSnapshot: s})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	// create fails on an existing id instead of overwriting it
	req := esapi.CreateRequest{
		Index:      e.indexName,
		DocumentID: key,
		Body:       bytes.NewReader(data),
		Refresh:    "wait_for",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		return "", ErrExists
	}
	if res.IsError() {
		return "", fmt.Errorf("create error: %s", res.Status())
	}
	return key, nil
}

func (e *ElasticsearchStore) Get(ctx context.Context, key string) (*domain.StoredSnapshot, error) {
	req := esapi.GetRequest{Index: e.indexName, DocumentID: key}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("get error: %s", res.Status())
	}

	var body struct {
		Source domain.StoredSnapshot `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parse get response: %w", err)
	}
	return &body.Source, nil
}

func (e *ElasticsearchStore) List(ctx context.Context) ([]*domain.StoredSnapshot, error) {
	query := `{"query": {"match_all": {}}, "sort": [{"key": "asc"}]}`

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(strings.NewReader(query)),
		e.client.Search.WithSize(listLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return []*domain.StoredSnapshot{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.Status())
	}

	var body struct {
		Hits struct {
			Hits []struct {
				Source domain.StoredSnapshot `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	out := make([]*domain.StoredSnapshot, 0, len(body.Hits.Hits))
	for i := range body.Hits.Hits {
		out = append(out, &body.Hits.Hits[i].Source)
	}
	return out, nil
}

func (e *ElasticsearchStore) Clear(ctx context.Context) (int, error) {
	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		strings.NewReader(`{"query": {"match_all": {}}}`),
		e.client.DeleteByQuery.WithContext(ctx),
		e.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("delete by query error: %s", res.Status())
	}

	var body struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("parse delete response: %w", err)
	}
	return body.Deleted, nil
}
