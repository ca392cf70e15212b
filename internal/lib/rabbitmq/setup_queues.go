package rabbitmq

// Ключи маршрутизации уведомлений.
const (
	RoutingClient = "client"
	RoutingAdmin  = "admin"
)

// QueueConfig описывает очередь и ключ, с которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// NotificationQueues возвращает очереди, которые слушает notification-sender.
func NotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notifications.client", RoutingKey: RoutingClient},
		{QueueName: "notifications.admin", RoutingKey: RoutingAdmin},
	}
}
