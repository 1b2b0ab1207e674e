package worker

import (
	"github.com/helpdesk-labs/ticket-tracker/internal/service"
)

// StartNotificationWorker registers notification and event sink handlers.
// Handlers run synchronously after each committed ticket change.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
