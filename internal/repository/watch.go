package repository

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// changeFeed adapts a MongoDB change stream to the ChangeFeed interface.
// A goroutine drains the stream and converts each event into an empty
// signal; subscribers re-list the collection themselves.
type changeFeed struct {
	events chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (f *changeFeed) Events() <-chan struct{} { return f.events }

func (f *changeFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *changeFeed) Close() error {
	f.cancel()
	return nil
}

// watchCollection opens a change stream on coll filtered by pipeline and
// pumps its events into a changeFeed until ctx is cancelled.
func watchCollection(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) (ChangeFeed, error) {
	ctx, cancel := context.WithCancel(ctx)

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := coll.Watch(ctx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	feed := &changeFeed{
		events: make(chan struct{}, 1),
		cancel: cancel,
	}

	go func() {
		defer close(feed.events)
		defer cs.Close(context.Background())
		for cs.Next(ctx) {
			// Coalesce: one pending signal is enough, the receiver
			// re-reads the full collection anyway.
			select {
			case feed.events <- struct{}{}:
			default:
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			feed.mu.Lock()
			feed.err = err
			feed.mu.Unlock()
		}
	}()

	return feed, nil
}

// userScopedPipeline matches events for one user's documents. Deletes carry
// no full document, so they are matched by the composite document id prefix
// written by the cart repository.
func userScopedPipeline(userID string, idPrefix string) mongo.Pipeline {
	or := bson.A{
		bson.M{"fullDocument.user_id": userID},
	}
	if idPrefix != "" {
		or = append(or, bson.M{"documentKey._id": bson.M{"$regex": "^" + idPrefix}})
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": or}}},
	}
}
