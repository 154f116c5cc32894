package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"printrelay/agent/storage"
	commonstorage "printrelay/common/storage"
)

// DefaultSyncBatchSize bounds how many envelopes one pass will try to deliver.
const DefaultSyncBatchSize = 100

// stalledEnvelopeAttempts is the attempt count at which a failing head of the
// queue is logged as an error instead of a warning.
const stalledEnvelopeAttempts = 10

// DataPoster delivers one payload to the aggregator.
type DataPoster interface {
	PostData(ctx context.Context, credential string, payload json.RawMessage) (*DataResponse, error)
}

// CredentialSource supplies the delivery credential and takes rejections back.
type CredentialSource interface {
	EnsureRegistered(ctx context.Context) error
	Credential() string
	MarkCredentialRejected()
}

// RemoteLinker records aggregator-assigned device ids.
type RemoteLinker interface {
	SetRemoteIdentity(ctx context.Context, deviceID int64, remoteID string) error
}

// SyncResult summarizes one pass.
type SyncResult struct {
	Attempted int
	Delivered int
	Remaining int
}

// SyncEngine drains the outbound queue in FIFO order.
type SyncEngine struct {
	queue     storage.OutboundQueue
	linker    RemoteLinker
	poster    DataPoster
	creds     CredentialSource
	batchSize int
	log       Logger
	telemetry *Telemetry
}

// NewSyncEngine builds a SyncEngine. batchSize <= 0 uses DefaultSyncBatchSize.
func NewSyncEngine(queue storage.OutboundQueue, linker RemoteLinker, poster DataPoster, creds CredentialSource, batchSize int, log Logger) *SyncEngine {
	if batchSize <= 0 {
		batchSize = DefaultSyncBatchSize
	}
	return &SyncEngine{
		queue:     queue,
		linker:    linker,
		poster:    poster,
		creds:     creds,
		batchSize: batchSize,
		log:       orNop(log),
	}
}

// SetTelemetry attaches delivery counters.
func (e *SyncEngine) SetTelemetry(t *Telemetry) { e.telemetry = t }

// SetBatchSize changes the batch bound for later passes.
func (e *SyncEngine) SetBatchSize(n int) {
	if n > 0 {
		e.batchSize = n
	}
}

// RunPass registers if needed, then syncs. A failed registration is logged and
// the sync still runs with whatever credential is on file.
func (e *SyncEngine) RunPass(ctx context.Context) (SyncResult, error) {
	if err := e.creds.EnsureRegistered(ctx); err != nil {
		e.log.Warn("Registration attempt failed", "error", err)
	}
	return e.Sync(ctx)
}

// Sync delivers up to one batch of envelopes, oldest first, acknowledging each
// only on a 200. The pass stops at the first envelope that is not
// acknowledged so later envelopes never overtake it. A missing or rejected
// credential ends the pass with ErrUnauthenticated.
//
// Cancellation is observed between envelopes; a delivery that has started is
// completed and its outcome recorded.
func (e *SyncEngine) Sync(ctx context.Context) (res SyncResult, err error) {
	defer e.updateDepth(ctx, &res)

	credential := e.creds.Credential()
	if credential == "" {
		e.telemetry.DeliveryFailed("unauthenticated")
		e.creds.MarkCredentialRejected()
		return res, fmt.Errorf("%w: no delivery credential", ErrUnauthenticated)
	}

	batch, err := e.queue.PeekBatch(ctx, e.batchSize)
	if err != nil {
		return res, fmt.Errorf("peek outbound queue: %w", err)
	}

	for _, env := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++

		bg := context.WithoutCancel(ctx)
		resp, err := e.poster.PostData(bg, credential, env.Payload)
		if err != nil {
			if recErr := e.queue.RecordAttempt(bg, env.ID, err.Error()); recErr != nil {
				e.log.Warn("Could not record delivery attempt", "envelope", env.ID, "error", recErr)
			}
			if errors.Is(err, ErrUnauthenticated) {
				e.telemetry.DeliveryFailed("unauthenticated")
				e.creds.MarkCredentialRejected()
				return res, fmt.Errorf("envelope %d: %w", env.ID, err)
			}
			e.telemetry.DeliveryFailed("error")
			if attempts := env.Attempts + 1; attempts >= stalledEnvelopeAttempts {
				e.log.Error("Envelope keeps failing and is holding back the queue", "envelope", env.ID, "attempts", attempts, "error", err)
			} else {
				e.log.Warn("Envelope not acknowledged, will retry next pass", "envelope", env.ID, "attempts", attempts, "error", err)
			}
			if !errors.Is(err, ErrDeliveryFailed) {
				err = fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
			}
			return res, fmt.Errorf("envelope %d: %w", env.ID, err)
		}

		if err := e.queue.Ack(bg, env.ID); err != nil {
			return res, fmt.Errorf("ack envelope %d: %w", env.ID, err)
		}
		res.Delivered++
		e.telemetry.Delivered()
		e.linkRemoteIdentity(bg, env, resp)
	}

	if res.Delivered > 0 {
		e.log.Info("Sync pass delivered envelopes", "delivered", res.Delivered)
	}
	return res, nil
}

// linkRemoteIdentity stores the printer id the aggregator assigned in reply
// to a discovery envelope.
func (e *SyncEngine) linkRemoteIdentity(ctx context.Context, env storage.Envelope, resp *DataResponse) {
	if e.linker == nil || resp == nil || resp.PrinterID == "" {
		return
	}
	var head struct {
		Type      commonstorage.EnvelopeType `json:"type"`
		PrinterID int64                      `json:"printer_id"`
	}
	if err := json.Unmarshal(env.Payload, &head); err != nil || head.PrinterID == 0 {
		return
	}
	if head.Type != commonstorage.EnvelopeDiscovery {
		return
	}
	if err := e.linker.SetRemoteIdentity(ctx, head.PrinterID, resp.PrinterID.String()); err != nil {
		e.log.Warn("Could not link remote printer id", "device_id", head.PrinterID, "remote_id", resp.PrinterID, "error", err)
		return
	}
	e.log.Debug("Linked remote printer id", "device_id", head.PrinterID, "remote_id", resp.PrinterID)
}

func (e *SyncEngine) updateDepth(ctx context.Context, res *SyncResult) {
	n, err := e.queue.QueueDepth(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	res.Remaining = n
	e.telemetry.SetQueueDepth(n)
}
