package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/watchworthy-auth/internal/events"
	"github.com/spec-kit/watchworthy-auth/internal/service"
)

// StartNotificationWorker subscribes the notification handlers and logs which events they cover.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) []events.EventType {
	if notificationService == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	subscribed := notificationService.RegisterHandlers()
	names := make([]string, 0, len(subscribed))
	for _, t := range subscribed {
		names = append(names, string(t))
	}
	logger.Info("notification worker started", zap.Strings("events", names))
	return subscribed
}
