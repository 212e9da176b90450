package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore lays the tree out over MongoDB: the first path segment names a
// collection, the second a document _id, and deeper segments a dotted field
// path inside that document. Multi-document updates run in a transaction and
// subscriptions use change streams, so the server must be a replica set.
type MongoStore struct {
	db   *mongo.Database
	keys *PushIDGenerator

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewMongoStore uses database as the root of the tree.
func NewMongoStore(database *mongo.Database) *MongoStore {
	return &MongoStore{
		db:   database,
		keys: NewPushIDGenerator(),
		subs: map[*Subscription]struct{}{},
	}
}

type mongoPath struct {
	coll  string
	id    string
	field string
}

func (p mongoPath) depth() int {
	switch {
	case p.field != "":
		return 3
	case p.id != "":
		return 2
	}
	return 1
}

func splitMongo(path string) (mongoPath, error) {
	p, err := cleanPath(path)
	if err != nil {
		return mongoPath{}, err
	}
	segs := Split(p)
	if len(segs) == 0 {
		return mongoPath{}, ErrInvalidPath
	}
	mp := mongoPath{coll: segs[0]}
	if len(segs) > 1 {
		mp.id = segs[1]
	}
	if len(segs) > 2 {
		mp.field = strings.Join(segs[2:], ".")
	}
	return mp, nil
}

func (m *MongoStore) NewKey() string { return m.keys.Next() }

func (m *MongoStore) Get(ctx context.Context, path string) (Snapshot, error) {
	mp, err := splitMongo(path)
	if err != nil {
		return Snapshot{}, err
	}
	v, err := m.read(ctx, mp)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: get %s: %w", ErrUnavailable, path, err)
	}
	return Snapshot{key: lastSegment(path), value: v}, nil
}

func (m *MongoStore) read(ctx context.Context, mp mongoPath) (any, error) {
	coll := m.db.Collection(mp.coll)
	if mp.depth() == 1 {
		cur, err := coll.Find(ctx, bson.D{})
		if err != nil {
			return nil, err
		}
		defer cur.Close(ctx)
		out := map[string]any{}
		for cur.Next(ctx) {
			var doc bson.M
			if err := cur.Decode(&doc); err != nil {
				return nil, err
			}
			id, _ := doc["_id"].(string)
			delete(doc, "_id")
			if v := prune(fromBSON(doc)); v != nil && id != "" {
				out[id] = v
			}
		}
		if err := cur.Err(); err != nil {
			return nil, err
		}
		return prune(out), nil
	}

	opts := options.FindOne()
	if mp.field != "" {
		opts.SetProjection(bson.M{mp.field: 1})
	}
	var doc bson.M
	err := coll.FindOne(ctx, bson.M{"_id": mp.id}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	delete(doc, "_id")
	v := fromBSON(doc)
	if mp.field != "" {
		v = NewSnapshot("", v).Child(strings.ReplaceAll(mp.field, ".", "/")).value
	}
	return prune(v), nil
}

func (m *MongoStore) Set(ctx context.Context, path string, value any) error {
	mp, err := splitMongo(path)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	if mp.depth() == 1 {
		err = m.replaceCollection(ctx, mp.coll, v)
	} else {
		err = m.apply(ctx, mp, v)
	}
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrUnavailable, path, err)
	}
	return nil
}

func (m *MongoStore) replaceCollection(ctx context.Context, name string, v any) error {
	children, _ := v.(map[string]any)
	if v != nil && children == nil {
		return ErrInvalidPath
	}
	return m.withSession(ctx, func(sc context.Context) error {
		coll := m.db.Collection(name)
		if _, err := coll.DeleteMany(sc, bson.D{}); err != nil {
			return err
		}
		for id, child := range children {
			if err := m.apply(sc, mongoPath{coll: name, id: id}, child); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// apply writes one normalized value at a depth 2 or deeper path.
func (m *MongoStore) apply(ctx context.Context, mp mongoPath, v any) error {
	coll := m.db.Collection(mp.coll)
	filter := bson.M{"_id": mp.id}
	switch {
	case mp.depth() == 2 && v == nil:
		_, err := coll.DeleteOne(ctx, filter)
		return err
	case mp.depth() == 2:
		doc, ok := v.(map[string]any)
		if !ok {
			return ErrInvalidPath
		}
		doc = withID(doc, mp.id)
		_, err := coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
		return err
	case v == nil:
		_, err := coll.UpdateOne(ctx, filter, bson.M{"$unset": bson.M{mp.field: ""}})
		return err
	default:
		_, err := coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{mp.field: v}}, options.Update().SetUpsert(true))
		return err
	}
}

func withID(doc map[string]any, id string) map[string]any {
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = id
	return out
}

// Update groups field writes per document. A single-document update is one
// atomic UpdateOne; anything wider runs inside a transaction.
func (m *MongoStore) Update(ctx context.Context, values map[string]any) error {
	clean, err := cleanUpdate(values)
	if err != nil {
		return err
	}
	type op struct {
		mp mongoPath
		v  any
	}
	ops := make([]op, 0, len(clean))
	docs := map[string]struct{}{}
	for p, v := range clean {
		mp, err := splitMongo(p)
		if err != nil {
			return err
		}
		if mp.depth() == 1 {
			return fmt.Errorf("%w: collection %q cannot be part of a multi-path update", ErrInvalidPath, mp.coll)
		}
		ops = append(ops, op{mp: mp, v: v})
		docs[mp.coll+"/"+mp.id] = struct{}{}
	}

	if len(docs) == 1 && ops[0].mp.depth() == 3 {
		mp := ops[0].mp
		set, unset := bson.M{}, bson.M{}
		for _, o := range ops {
			if o.v == nil {
				unset[o.mp.field] = ""
			} else {
				set[o.mp.field] = o.v
			}
		}
		update := bson.M{}
		if len(set) > 0 {
			update["$set"] = set
		}
		if len(unset) > 0 {
			update["$unset"] = unset
		}
		_, err := m.db.Collection(mp.coll).UpdateOne(ctx, bson.M{"_id": mp.id}, update, options.Update().SetUpsert(len(set) > 0))
		if err != nil {
			return fmt.Errorf("%w: update: %w", ErrUnavailable, err)
		}
		return nil
	}

	err = m.withSession(ctx, func(sc context.Context) error {
		for _, o := range ops {
			if err := m.apply(sc, o.mp, o.v); err != nil {
				return err
			}
		}
		return nil
	}, len(ops) > 1)
	if err != nil {
		return fmt.Errorf("%w: update: %w", ErrUnavailable, err)
	}
	return nil
}

func (m *MongoStore) withSession(ctx context.Context, fn func(context.Context) error, txn bool) error {
	if !txn {
		return fn(ctx)
	}
	session, err := m.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Query pushes equality filters down for collection level queries and
// orders client-side everywhere.
func (m *MongoStore) Query(ctx context.Context, path string, q Query) ([]Snapshot, error) {
	mp, err := splitMongo(path)
	if err != nil {
		return nil, err
	}
	if mp.depth() > 1 || q.OrderBy == "" || q.EqualTo == nil {
		snap, err := m.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		return applyQuery(snap.Children(), q)
	}

	want, err := normalize(q.EqualTo)
	if err != nil {
		return nil, err
	}
	field := strings.ReplaceAll(q.OrderBy, "/", ".")
	cur, err := m.db.Collection(mp.coll).Find(ctx, bson.M{field: want})
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", ErrUnavailable, path, err)
	}
	defer cur.Close(ctx)
	var out []Snapshot
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: query %s: %w", ErrUnavailable, path, err)
		}
		id, _ := doc["_id"].(string)
		delete(doc, "_id")
		out = append(out, Snapshot{key: id, value: prune(fromBSON(doc))})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", ErrUnavailable, path, err)
	}
	return applyQuery(out, q)
}

// Subscribe watches the collection, narrowed to one document when the path
// points inside it. Any event for that scope triggers a re-read.
func (m *MongoStore) Subscribe(path string, fn func(Snapshot)) (*Subscription, error) {
	mp, err := splitMongo(path)
	if err != nil {
		return nil, err
	}
	p, _ := cleanPath(path)
	sub := newSubscription(p)

	pipeline := mongo.Pipeline{}
	if mp.id != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: mp.id}}}})
	}
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		for sub.ctx.Err() == nil {
			err := m.watch(sub, mp.coll, pipeline)
			if sub.ctx.Err() != nil {
				return
			}
			slog.Warn("docstore: change stream ended",
				slog.String("subscription", sub.id),
				slog.String("error", fmt.Sprint(err)))
			select {
			case <-sub.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			// Writes may have been missed while the stream was down.
			sub.signal()
		}
	}()

	sub.release = func() {
		<-watcherDone
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
	sub.start(func(ctx context.Context) (Snapshot, error) { return m.Get(ctx, p) }, fn)
	return sub, nil
}

func (m *MongoStore) watch(sub *Subscription, coll string, pipeline mongo.Pipeline) error {
	stream, err := m.db.Collection(coll).Watch(sub.ctx, pipeline)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())
	for stream.Next(sub.ctx) {
		sub.signal()
	}
	return stream.Err()
}

// Close stops every open subscription. The client itself belongs to the
// caller.
func (m *MongoStore) Close() error {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	return nil
}

// fromBSON converts decoded driver values into the JSON-compatible shapes
// the rest of the package works with.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = fromBSON(c)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = fromBSON(c)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = fromBSON(c)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.DateTime:
		return float64(t)
	case primitive.ObjectID:
		return t.Hex()
	default:
		return v
	}
}
