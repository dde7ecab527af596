package repository

import (
	"context"
	"errors"
	"fmt"
)

// ErrBadRequest marks façade requests that can never succeed as sent.
var ErrBadRequest = errors.New("bad facade request")

// FacadeCollection executes façade operations against one store. It is the
// server side of HTTPStore.
type FacadeCollection interface {
	Execute(ctx context.Context, op string, req FacadeRequest) (any, error)
}

type facadeCollection[T Record] struct {
	store Store[T]
}

func NewFacadeCollection[T Record](store Store[T]) FacadeCollection {
	return &facadeCollection[T]{store: store}
}

func (c *facadeCollection[T]) Execute(ctx context.Context, op string, req FacadeRequest) (any, error) {
	switch op {
	case "find":
		opts, err := findOptions(req.Options)
		if err != nil {
			return nil, err
		}
		return c.store.GetAll(ctx, Filter(req.Query), opts)
	case "findOne":
		return c.findOne(ctx, Filter(req.Query))
	case "insertOne":
		return c.insertOne(ctx, req.Document)
	case "updateOne":
		return c.updateOne(ctx, req)
	case "replaceOne":
		return c.replaceOne(ctx, req)
	case "deleteOne":
		rec, err := c.findOne(ctx, Filter(req.Query))
		if err != nil {
			return nil, err
		}
		res := facadeCount{}
		if rec != nil {
			ok, err := c.store.Delete(ctx, (*rec).RecordID())
			if err != nil {
				return nil, err
			}
			if ok {
				res.DeletedCount = 1
			}
		}
		return res, nil
	case "deleteMany":
		n, err := c.store.DeleteMany(ctx, Filter(req.Query))
		if err != nil {
			return nil, err
		}
		return facadeCount{DeletedCount: n}, nil
	}
	return nil, fmt.Errorf("%w: unknown operation %s", ErrBadRequest, op)
}

func (c *facadeCollection[T]) findOne(ctx context.Context, query Filter) (*T, error) {
	if id, ok := query["id"].(string); ok && len(query) == 1 {
		return c.store.Get(ctx, id)
	}
	recs, err := c.store.GetAll(ctx, query, FindOptions{Limit: 1})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func (c *facadeCollection[T]) insertOne(ctx context.Context, doc map[string]any) (any, error) {
	rec, err := fromDocument[T](doc)
	if err != nil {
		return nil, fmt.Errorf("%w: decode document: %v", ErrBadRequest, err)
	}
	if rec.RecordID() == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrBadRequest)
	}
	if err := c.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	return facadeCount{InsertedID: rec.RecordID()}, nil
}

// replaceOne swaps the whole stored document, so fields absent from the
// replacement are cleared rather than kept.
func (c *facadeCollection[T]) replaceOne(ctx context.Context, req FacadeRequest) (any, error) {
	if req.Document == nil {
		return nil, fmt.Errorf("%w: document is required", ErrBadRequest)
	}
	upsert, _ := req.Options["upsert"].(bool)

	rec, err := c.findOne(ctx, Filter(req.Query))
	if err != nil {
		return nil, err
	}
	if rec == nil && !upsert {
		return facadeCount{}, nil
	}

	doc := make(map[string]any, len(req.Document)+1)
	for k, v := range req.Document {
		doc[k] = v
	}
	if rec != nil {
		doc["id"] = (*rec).RecordID()
	} else if id, ok := req.Query["id"]; ok {
		doc["id"] = id
	}
	replacement, err := fromDocument[T](doc)
	if err != nil {
		return nil, fmt.Errorf("%w: decode document: %v", ErrBadRequest, err)
	}
	if replacement.RecordID() == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrBadRequest)
	}
	if err := c.store.Put(ctx, replacement); err != nil {
		return nil, err
	}
	if rec == nil {
		return facadeCount{InsertedID: replacement.RecordID(), ModifiedCount: 1}, nil
	}
	return facadeCount{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (c *facadeCollection[T]) updateOne(ctx context.Context, req FacadeRequest) (any, error) {
	set, _ := req.Update["$set"].(map[string]any)
	if set == nil {
		return nil, fmt.Errorf("%w: update.$set is required", ErrBadRequest)
	}
	upsert, _ := req.Options["upsert"].(bool)

	rec, err := c.findOne(ctx, Filter(req.Query))
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if _, err := c.store.Update(ctx, (*rec).RecordID(), Fields(set)); err != nil {
			return nil, err
		}
		return facadeCount{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	if !upsert {
		return facadeCount{}, nil
	}

	doc := make(map[string]any, len(req.Query)+len(set))
	for k, v := range req.Query {
		doc[k] = v
	}
	for k, v := range set {
		doc[k] = v
	}
	res, err := c.insertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	out := res.(facadeCount)
	out.ModifiedCount = 1
	return out, nil
}

func findOptions(raw map[string]any) (FindOptions, error) {
	var opts FindOptions
	if sort, ok := raw["sort"].(map[string]any); ok {
		for field, dir := range sort {
			d, _ := dir.(float64)
			if field != "createdAt" || d != -1 {
				return opts, fmt.Errorf("%w: unsupported sort %s:%v", ErrBadRequest, field, dir)
			}
			opts.SortByCreatedDesc = true
		}
	}
	if limit, ok := raw["limit"].(float64); ok {
		opts.Limit = int(limit)
	}
	return opts, nil
}
