package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
)

// Partition key = order id so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
