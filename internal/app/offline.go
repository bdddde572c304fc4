package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/offline"
)

type QueueChange func(ctx context.Context, changeType domain.ChangeType, data json.RawMessage) (domain.PendingChange, error)

func BuildQueueChange(queue *offline.Queue) QueueChange {
	return func(ctx context.Context, changeType domain.ChangeType, data json.RawMessage) (domain.PendingChange, error) {
		change, err := queue.Enqueue(ctx, changeType, data)
		if err != nil {
			return domain.PendingChange{}, fmt.Errorf("could not queue change: %w", err)
		}

		logging.FromContext(ctx).InfoContext(ctx, "Queued change", "changeId", change.ID, "type", string(change.Type))

		return change, nil
	}
}

type OfflineStatus struct {
	Status      offline.Status
	Pending     int
	SyncPending bool
}

type GetOfflineStatus func(ctx context.Context) OfflineStatus

func BuildGetOfflineStatus(queue *offline.Queue) GetOfflineStatus {
	return func(ctx context.Context) OfflineStatus {
		return OfflineStatus{
			Status:      queue.Status(),
			Pending:     len(queue.Pending()),
			SyncPending: queue.SyncPending(),
		}
	}
}

type SetOnline func(ctx context.Context, online bool) OfflineStatus

func BuildSetOnline(queue *offline.Queue) SetOnline {
	getStatus := BuildGetOfflineStatus(queue)

	return func(ctx context.Context, online bool) OfflineStatus {
		queue.SetOnline(ctx, online)
		return getStatus(ctx)
	}
}

type SyncChanges func(ctx context.Context) (int, error)

func BuildSyncChanges(queue *offline.Queue) SyncChanges {
	return func(ctx context.Context) (int, error) {
		synced, err := queue.Sync(ctx)
		if err != nil {
			// NOTE: The remaining changes stay queued for the next attempt
			return synced, fmt.Errorf("could not sync changes: %w", err)
		}
		return synced, nil
	}
}
