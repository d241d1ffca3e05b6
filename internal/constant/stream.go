package constant

const (
	OrderQueueName  = "bot_order_queue"
	OrderQueueGroup = "bot_order_group"

	OrderStreamName          = "bot_order"
	OrderStreamSubjectAll    = "bot_order.*"
	OrderStreamSubjectCreate = "bot_order.create"

	ControlQueueName  = "bot_control_queue"
	ControlQueueGroup = "bot_control_group"

	ControlStreamName           = "bot_control"
	ControlStreamSubjectAll     = "bot_control.*"
	ControlStreamSubjectCommand = "bot_control.command"
)

const (
	EventKindOrderCreation = "order_creation"
	EventKindBotControl    = "bot_control"
)
