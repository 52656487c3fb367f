package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat metrics for message, receipt and upload lifecycle
var (
	ChatMessageAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_appended_total",
		Help: "Total number of messages appended to the ledger",
	}, []string{"content_type"})

	ChatReceiptsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_receipts_created_total",
		Help: "Total number of delivery receipts created by fan-out",
	})

	ChatReceiptsReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_receipts_read_total",
		Help: "Total number of receipts transitioned to read",
	})

	ChatFanOutFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_fanout_failed_total",
		Help: "Total number of messages whose receipt fan-out failed after retries",
	})

	ChatDirectConversationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_direct_conversations_created_total",
		Help: "Total number of one-to-one conversations created",
	})

	ChatGroupsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_groups_created_total",
		Help: "Total number of group conversations created",
	}, []string{"privacy"})

	ChatMembershipRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_membership_rejected_total",
		Help: "Total number of rejected membership changes",
	}, []string{"reason"}) // "forbidden", "capacity", "duplicate", "not_group"

	// Upload metrics
	UploadRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_upload_rejected_total",
		Help: "Total number of rejected file uploads",
	}, []string{"reason"}) // "extension", "size", "name"

	UploadSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_upload_size_bytes",
		Help:    "Size of accepted file uploads",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 11), // 1KiB .. 1GiB
	})

	PresenceCacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_presence_cache_errors_total",
		Help: "Total number of presence cache failures ignored by the identity registry",
	}, []string{"operation"})
)
