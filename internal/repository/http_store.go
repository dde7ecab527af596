package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Collection names understood by the store façade.
const (
	QRCodesCollection  = "qrCodes"
	FeedbackCollection = "feedback"
)

// FacadeRequest is the body of POST /{collection}/{operation}.
type FacadeRequest struct {
	Query    map[string]any `json:"query,omitempty"`
	Update   map[string]any `json:"update,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
	Document map[string]any `json:"document,omitempty"`
}

type facadeCount struct {
	InsertedID    string `json:"insertedId,omitempty"`
	MatchedCount  int64  `json:"matchedCount"`
	ModifiedCount int64  `json:"modifiedCount"`
	DeletedCount  int64  `json:"deletedCount"`
}

// FacadeError is a non-2xx reply from the façade. Client errors are not
// worth retrying.
type FacadeError struct {
	Status  int
	Message string
}

func (e *FacadeError) Error() string {
	return fmt.Sprintf("store facade: %d %s", e.Status, e.Message)
}

func (e *FacadeError) Temporary() bool { return e.Status >= 500 || e.Status == http.StatusTooManyRequests }

// HTTPStore reaches a database through the store façade's JSON surface.
type HTTPStore[T Record] struct {
	client     *http.Client
	baseURL    string
	collection string
	apiKey     string
}

func NewHTTPStore[T Record](client *http.Client, baseURL, collection, apiKey string) *HTTPStore[T] {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore[T]{
		client:     client,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		collection: collection,
		apiKey:     apiKey,
	}
}

func (s *HTTPStore[T]) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &FacadeError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (s *HTTPStore[T]) call(ctx context.Context, op string, body FacadeRequest, out any) error {
	return s.do(ctx, http.MethodPost, "/"+s.collection+"/"+op, body, out)
}

func (s *HTTPStore[T]) Put(ctx context.Context, rec T) error {
	doc, err := toDocument(rec)
	if err != nil {
		return err
	}
	return s.call(ctx, "replaceOne", FacadeRequest{
		Query:    map[string]any{"id": rec.RecordID()},
		Document: doc,
		Options:  map[string]any{"upsert": true},
	}, nil)
}

func (s *HTTPStore[T]) Get(ctx context.Context, id string) (*T, error) {
	var rec *T
	err := s.call(ctx, "findOne", FacadeRequest{Query: map[string]any{"id": id}}, &rec)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *HTTPStore[T]) GetAll(ctx context.Context, filter Filter, opts FindOptions) ([]T, error) {
	options := map[string]any{}
	if opts.SortByCreatedDesc {
		options["sort"] = map[string]any{"createdAt": -1}
	}
	if opts.Limit > 0 {
		options["limit"] = opts.Limit
	}

	recs := make([]T, 0)
	err := s.call(ctx, "find", FacadeRequest{Query: filter, Options: options}, &recs)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *HTTPStore[T]) Update(ctx context.Context, id string, fields Fields) (*T, error) {
	set := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != "id" {
			set[k] = v
		}
	}

	var res facadeCount
	err := s.call(ctx, "updateOne", FacadeRequest{
		Query:  map[string]any{"id": id},
		Update: map[string]any{"$set": set},
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *HTTPStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	var res facadeCount
	err := s.call(ctx, "deleteOne", FacadeRequest{Query: map[string]any{"id": id}}, &res)
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *HTTPStore[T]) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	var res facadeCount
	err := s.call(ctx, "deleteMany", FacadeRequest{Query: filter}, &res)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *HTTPStore[T]) Ping(ctx context.Context) error {
	var res struct {
		Status string `json:"status"`
	}
	if err := s.do(ctx, http.MethodGet, "/ping", nil, &res); err != nil {
		return err
	}
	if res.Status != "ok" {
		return fmt.Errorf("store facade ping: unexpected status %q", res.Status)
	}
	return nil
}
