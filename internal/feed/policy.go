package feed

import (
	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/transport/rest"
)

// Mutation records an optimistic status write so a policy can reconcile it
// with the remote outcome
type Mutation struct {
	Action  domain.StatusAction
	ItemIDs []string
	// Previous holds the stored copies of the affected items before the
	// write. Items that were not in the store are absent.
	Previous       []domain.FeedItem
	MetadataBefore domain.FeedMetadata
	MetadataAfter  domain.FeedMetadata
}

// ReconcilePolicy runs after every remote status write
type ReconcilePolicy interface {
	Reconcile(store *Store, m Mutation, res rest.Result)
}

// FireAndForget keeps the optimistic state whatever the remote outcome
type FireAndForget struct{}

func (FireAndForget) Reconcile(*Store, Mutation, rest.Result) {}

// RollbackOnFailure restores the affected items and reverses the badge
// adjustment when the remote write fails. Changes made to the store by
// other transitions in the meantime are kept.
type RollbackOnFailure struct{}

func (RollbackOnFailure) Reconcile(store *Store, m Mutation, res rest.Result) {
	if res.OK() {
		return
	}

	store.UpsertItems(m.Previous)
	store.UpdateMetadata(func(cur domain.FeedMetadata) domain.FeedMetadata {
		return domain.FeedMetadata{
			TotalCount:  cur.TotalCount + m.MetadataBefore.TotalCount - m.MetadataAfter.TotalCount,
			UnreadCount: cur.UnreadCount + m.MetadataBefore.UnreadCount - m.MetadataAfter.UnreadCount,
			UnseenCount: cur.UnseenCount + m.MetadataBefore.UnseenCount - m.MetadataAfter.UnseenCount,
		}
	})
}
