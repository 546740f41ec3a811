package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dauth-service/internal/bucketing"
	"dauth-service/internal/model"
	"dauth-service/internal/util"
)

const (
	bufferSize    = 1024
	batchSize     = 50
	flushInterval = 2 * time.Second
	sinkTimeout   = 10 * time.Second

	insertEventQuery = `INSERT INTO auth_events
        (event_bucket, user_id, event_type, session_id, fingerprint, ip, event_time, details)`
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
}

type BatchWriter interface {
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

type Indexer interface {
	IndexDocument(index, id string, document interface{}) (*esapi.Response, error)
}

// Recorder fans auth events out to Kafka, ClickHouse and Elasticsearch from
// a background worker. Recording never blocks or fails an auth flow: a full
// buffer drops the event with a warning, and sink errors are logged and
// swallowed. ClickHouse rows are batched; the other sinks get each event as
// it arrives.
type Recorder struct {
	events   chan *model.AuthEvent
	buckets  *bucketing.Manager
	kafka    Publisher
	olap     BatchWriter
	search   Indexer
	index    string
	done     chan struct{}
	stopOnce sync.Once
}

// NewRecorder starts the worker. Any sink may be nil and is skipped.
func NewRecorder(buckets *bucketing.Manager, kafka Publisher, olap BatchWriter, search Indexer, index string) *Recorder {
	r := &Recorder{
		events:  make(chan *model.AuthEvent, bufferSize),
		buckets: buckets,
		kafka:   kafka,
		olap:    olap,
		search:  search,
		index:   index,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues one event. Missing bucket and timestamp fields are filled in.
func (r *Recorder) Record(event *model.AuthEvent) {
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}
	event.EventBucket = r.buckets.EventBucket(event.UserID)

	select {
	case r.events <- event:
	default:
		util.Warn("Audit buffer full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("user_id", event.UserID))
	}
}

// Close drains queued events and stops the worker.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() {
		close(r.events)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuthEvent, 0, batchSize)

	for {
		select {
		case event, ok := <-r.events:
			if !ok {
				r.flush(batch)
				return
			}
			r.publish(event)
			batch = append(batch, event)
			if len(batch) >= batchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			r.flush(batch)
			batch = batch[:0]
		}
	}
}

// publish sends one event to Kafka and Elasticsearch.
func (r *Recorder) publish(event *model.AuthEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to encode audit event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if r.kafka != nil {
		if err := r.kafka.Publish(ctx, []byte(event.UserID), payload, map[string]string{
			"event_type": string(event.EventType),
		}); err != nil {
			util.Warn("Failed to publish audit event to kafka", zap.Error(err))
		}
	}

	if r.search != nil {
		res, err := r.search.IndexDocument(r.index, uuid.New().String(), event)
		if err != nil {
			util.Warn("Failed to index audit event", zap.Error(err))
		} else if res != nil {
			res.Body.Close()
		}
	}
}

// flush writes the pending batch to ClickHouse.
func (r *Recorder) flush(batch []*model.AuthEvent) {
	if r.olap == nil || len(batch) == 0 {
		return
	}

	rows := make([][]interface{}, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, []interface{}{
			e.EventBucket, e.UserID, string(e.EventType), e.SessionID,
			e.Fingerprint, e.IP, e.EventTime, e.Details,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := r.olap.BatchInsert(ctx, insertEventQuery, rows); err != nil {
		util.Warn("Failed to flush audit events to clickhouse",
			zap.Int("batch_size", len(rows)),
			zap.Error(err))
	}
}
