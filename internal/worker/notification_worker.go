package worker

import (
	"github.com/spec-kit/request-service/internal/events"
	"github.com/spec-kit/request-service/internal/service"
)

// StartNotificationWorker subscribes the committed-event consumers to the
// dispatcher: notification handlers always, the Redis forwarder when set.
func StartNotificationWorker(dispatcher events.Dispatcher, notifications *service.NotificationService, forwarder *events.RedisForwarder) {
	if dispatcher == nil {
		return
	}
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	if forwarder != nil {
		forwarder.Register(dispatcher)
	}
}
