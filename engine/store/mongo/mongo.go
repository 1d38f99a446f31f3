// Package mongo provides a MongoDB implementation of the C9 store.
//
// This implementation persists specifications, cases, and work items to
// MongoDB for durability across restarts, suitable for production
// deployments. Each domain object is stored as its own JSON-encoded
// payload alongside a handful of queryable top-level fields (status,
// case/task linkage) — unlike the teacher's registry store, which maps
// every field to its own bson tag, these records are read only by this
// engine, so a JSON payload column avoids hand-maintaining three
// parallel bson schemas for net.Net/workitem.Item/CaseRecord while still
// letting ListNonTerminalCases filter in the database rather than in Go.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/yawlgo/engine/engine/store"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/workitem"
)

// Store is a MongoDB implementation of store.Store. It persists
// specifications, cases, and work items in three collections of a
// caller-chosen database.
type Store struct {
	specs mongoCollection
	cases mongoCollection
	items mongoCollection
}

type mongoCollection = *mongo.Collection

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

type specDocument struct {
	ID      string `bson:"_id"`
	Payload []byte `bson:"payload"`
}

type caseDocument struct {
	ID             string `bson:"_id"`
	NetID          string `bson:"net_id"`
	Status         int    `bson:"status"`
	Terminal       bool   `bson:"terminal"`
	ParentCaseID   string `bson:"parent_case_id,omitempty"`
	ParentWorkItem string `bson:"parent_work_item,omitempty"`
	Payload        []byte `bson:"payload"`
}

type workItemDocument struct {
	ID     string `bson:"_id"`
	CaseID string `bson:"case_id"`
	TaskID string `bson:"task_id"`

	Payload []byte `bson:"payload"`
}

// New creates a MongoDB-backed Store using three collections of db:
// "specifications", "cases", "work_items".
func New(db *mongo.Database) *Store {
	return &Store{
		specs: db.Collection("specifications"),
		cases: db.Collection("cases"),
		items: db.Collection("work_items"),
	}
}

func (s *Store) SaveSpecification(ctx context.Context, n *net.Net) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("mongo: marshal specification %q: %w", n.ID, err)
	}
	doc := specDocument{ID: n.ID, Payload: payload}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.specs.ReplaceOne(ctx, bson.M{"_id": n.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongo: save specification %q: %w", n.ID, err)
	}
	return nil
}

func (s *Store) GetSpecification(ctx context.Context, id string) (*net.Net, error) {
	var doc specDocument
	if err := s.specs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: get specification %q: %w", id, err)
	}
	var n net.Net
	if err := json.Unmarshal(doc.Payload, &n); err != nil {
		return nil, fmt.Errorf("mongo: unmarshal specification %q: %w", id, err)
	}
	return &n, nil
}

func (s *Store) ListSpecifications(ctx context.Context) ([]*net.Net, error) {
	cursor, err := s.specs.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo: list specifications: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []specDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: list specifications decode: %w", err)
	}
	out := make([]*net.Net, len(docs))
	for i, doc := range docs {
		var n net.Net
		if err := json.Unmarshal(doc.Payload, &n); err != nil {
			return nil, fmt.Errorf("mongo: unmarshal specification %q: %w", doc.ID, err)
		}
		out[i] = &n
	}
	return out, nil
}

func (s *Store) DeleteSpecification(ctx context.Context, id string) error {
	result, err := s.specs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo: delete specification %q: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveCase(ctx context.Context, rec store.CaseRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("mongo: marshal case %q: %w", rec.ID, err)
	}
	doc := caseDocument{
		ID:             rec.ID,
		NetID:          rec.NetID,
		Status:         int(rec.Status),
		Terminal:       rec.IsTerminal(),
		ParentCaseID:   rec.ParentCaseID,
		ParentWorkItem: rec.ParentWorkItem,
		Payload:        payload,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.cases.ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongo: save case %q: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) GetCase(ctx context.Context, caseID string) (store.CaseRecord, error) {
	var doc caseDocument
	if err := s.cases.FindOne(ctx, bson.M{"_id": caseID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.CaseRecord{}, store.ErrNotFound
		}
		return store.CaseRecord{}, fmt.Errorf("mongo: get case %q: %w", caseID, err)
	}
	return decodeCase(doc)
}

func (s *Store) ListNonTerminalCases(ctx context.Context) ([]store.CaseRecord, error) {
	cursor, err := s.cases.Find(ctx, bson.M{"terminal": false})
	if err != nil {
		return nil, fmt.Errorf("mongo: list non-terminal cases: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []caseDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: list non-terminal cases decode: %w", err)
	}
	out := make([]store.CaseRecord, len(docs))
	for i, doc := range docs {
		rec, err := decodeCase(doc)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

func (s *Store) DeleteCase(ctx context.Context, caseID string) error {
	result, err := s.cases.DeleteOne(ctx, bson.M{"_id": caseID})
	if err != nil {
		return fmt.Errorf("mongo: delete case %q: %w", caseID, err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func decodeCase(doc caseDocument) (store.CaseRecord, error) {
	var rec store.CaseRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return store.CaseRecord{}, fmt.Errorf("mongo: unmarshal case %q: %w", doc.ID, err)
	}
	return rec, nil
}

func (s *Store) SaveWorkItem(ctx context.Context, it *workitem.Item) error {
	payload, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("mongo: marshal work item %q: %w", it.ID, err)
	}
	doc := workItemDocument{
		ID:      string(it.ID),
		CaseID:  it.CaseID,
		TaskID:  string(it.TaskID),
		Payload: payload,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.items.ReplaceOne(ctx, bson.M{"_id": string(it.ID)}, doc, opts); err != nil {
		return fmt.Errorf("mongo: save work item %q: %w", it.ID, err)
	}
	return nil
}

func (s *Store) GetWorkItem(ctx context.Context, id workitem.ID) (*workitem.Item, error) {
	var doc workItemDocument
	if err := s.items.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: get work item %q: %w", id, err)
	}
	return decodeWorkItem(doc)
}

func (s *Store) ListWorkItemsByCase(ctx context.Context, caseID string) ([]*workitem.Item, error) {
	cursor, err := s.items.Find(ctx, bson.M{"case_id": caseID})
	if err != nil {
		return nil, fmt.Errorf("mongo: list work items for case %q: %w", caseID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []workItemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: list work items decode: %w", err)
	}
	out := make([]*workitem.Item, len(docs))
	for i, doc := range docs {
		it, err := decodeWorkItem(doc)
		if err != nil {
			return nil, err
		}
		out[i] = it
	}
	return out, nil
}

func (s *Store) DeleteWorkItem(ctx context.Context, id workitem.ID) error {
	result, err := s.items.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return fmt.Errorf("mongo: delete work item %q: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func decodeWorkItem(doc workItemDocument) (*workitem.Item, error) {
	var it workitem.Item
	if err := json.Unmarshal(doc.Payload, &it); err != nil {
		return nil, fmt.Errorf("mongo: unmarshal work item %q: %w", doc.ID, err)
	}
	return &it, nil
}
