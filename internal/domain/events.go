package domain

import "time"

// Routing keys for events published to the broker. Downstream consumers
// (notifications, analytics) bind to these on the `banka.events` exchange.
const (
	RoutingKeyTransferCompleted = "transfer.internal.completed"
	RoutingKeyTransferInitiated = "transfer.external.initiated"
	RoutingKeySettlementApplied = "settlement.applied"
	RoutingKeyDepositSettled    = "deposit.settled"
	RoutingKeyGoalCompleted     = "savings.goal.completed"
)

// TransferCompletedEvent is published after an internal transfer settles.
type TransferCompletedEvent struct {
	SenderUserID   string    `json:"sender_user_id"`
	ReceiverUserID string    `json:"receiver_user_id"`
	Amount         int64     `json:"amount"`
	TotalTax       int64     `json:"total_tax"`
	Reference      string    `json:"reference"`
	Timestamp      time.Time `json:"timestamp"`
}

// TransferInitiatedEvent is published when an external transfer is accepted by
// the switch. Settlement is still outstanding at this point.
type TransferInitiatedEvent struct {
	SenderUserID string    `json:"sender_user_id"`
	BankCode     string    `json:"bank_code"`
	Amount       int64     `json:"amount"`
	TotalTax     int64     `json:"total_tax"`
	Reference    string    `json:"reference"`
	Timestamp    time.Time `json:"timestamp"`
}

// SettlementAppliedEvent is published after a webhook-confirmed movement has
// been applied to the ledger.
type SettlementAppliedEvent struct {
	UserID    string    `json:"user_id"`
	Mode      string    `json:"mode"`
	Amount    int64     `json:"amount"`
	NewBal    int64     `json:"new_bal"`
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
}

// GoalCompletedEvent is published when a savings goal reaches its target.
type GoalCompletedEvent struct {
	UserID    string    `json:"user_id"`
	GoalID    string    `json:"goal_id"`
	GoalName  string    `json:"goal_name"`
	Balance   int64     `json:"balance"`
	Timestamp time.Time `json:"timestamp"`
}
