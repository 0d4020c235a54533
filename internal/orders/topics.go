package orders

const (
	TopicOrderSubmitted     = "orders.submitted"
	TopicOrderStatusChanged = "orders.status_changed"
)

// Partition key = order id, so every event of one order stays in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
